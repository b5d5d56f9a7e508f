package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BruksfildServices01/clinic-sync/internal/gateway"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// Event types on the wire.
const (
	TypeAppointment        = "appointment"
	TypeAppointmentDeleted = "appointment_deleted"
	TypeNotification       = "notification"
	TypeMarkRead           = "mark_read"
)

// Applier is the sync engine's incoming-event path.
type Applier interface {
	ApplyIncoming(ctx context.Context, owner models.Owner, r *models.Appointment) (bool, error)
	ApplyRemoteDeletion(ctx context.Context, owner models.Owner, id int64) (bool, error)
}

type NotificationStore interface {
	Save(ctx context.Context, n *models.Notification) error
	MarkRead(ctx context.Context, owner models.Owner, id int64) (bool, error)
}

type Identity interface {
	Owner() (models.Owner, bool)
	AccessToken() string
}

type Config struct {
	URL           string
	Engine        Applier
	Notifications NotificationStore
	Session       Identity

	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

var errSignedOut = errors.New("no signed-in owner")

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type deletion struct {
	ID int64 `json:"id"`
}

type ack struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

type event struct {
	owner        models.Owner
	kind         string
	appointment  *models.Appointment
	id           int64
	notification *models.Notification
}

// Bridge keeps one socket open for the signed-in owner and feeds what it
// receives into the local store. Events are applied one at a time by a
// single worker so they queue behind an in-flight pass instead of blocking
// the reader.
type Bridge struct {
	url     string
	engine  Applier
	notes   NotificationStore
	session Identity
	dialer  *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	queue chan event

	// mu guards conn writes and the acks not yet delivered.
	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]struct{}
}

func New(cfg Config) *Bridge {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = time.Minute
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return &Bridge{
		url:        cfg.URL,
		engine:     cfg.Engine,
		notes:      cfg.Notifications,
		session:    cfg.Session,
		dialer:     cfg.Dialer,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
		queue:      make(chan event, 64),
		pending:    map[int64]struct{}{},
	}
}

// Run connects and reconnects with exponential backoff until ctx is done.
// It returns only after the event worker has stopped.
func (b *Bridge) Run(ctx context.Context) error {
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		b.worker(ctx)
	}()
	defer func() { <-workerDone }()

	backoff := b.minBackoff
	for {
		connected, err := b.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = b.minBackoff
		}
		if !errors.Is(err, errSignedOut) {
			log.Printf("notification stream: %v; retrying in %s", err, backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
		}
	}
}

func (b *Bridge) endpoint(owner models.Owner) (string, error) {
	u, err := url.Parse(b.url)
	if err != nil {
		return "", fmt.Errorf("stream url: %w", err)
	}
	q := u.Query()
	q.Set("userType", string(owner.Role))
	q.Set("userId", strconv.FormatInt(owner.ID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connectOnce serves one connection; connected reports whether the dial worked.
func (b *Bridge) connectOnce(ctx context.Context) (connected bool, err error) {
	owner, ok := b.session.Owner()
	if !ok {
		return false, errSignedOut
	}
	target, err := b.endpoint(owner)
	if err != nil {
		return false, err
	}

	header := http.Header{}
	if tok := b.session.AccessToken(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, _, err := b.dialer.DialContext(ctx, target, header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	log.Printf("notification stream connected owner=%s", owner)

	b.attach(conn)
	defer b.detach(conn)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		ev, err := decode(owner, env)
		if err != nil {
			log.Printf("notification stream: dropping %q event: %v", env.Type, err)
			continue
		}
		select {
		case b.queue <- ev:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func decode(owner models.Owner, env envelope) (event, error) {
	ev := event{owner: owner, kind: env.Type}
	switch env.Type {
	case TypeAppointment:
		ap, err := gateway.DecodeAppointment(env.Data)
		if err != nil {
			return ev, err
		}
		ev.appointment = ap
	case TypeAppointmentDeleted:
		var d deletion
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return ev, err
		}
		if d.ID <= 0 {
			return ev, errors.New("deletion without id")
		}
		ev.id = d.ID
	case TypeNotification:
		var n models.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return ev, err
		}
		if n.ID <= 0 {
			return ev, errors.New("notification without id")
		}
		n.OwnerKey = owner.String()
		n.Read = false
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		ev.notification = &n
	default:
		return ev, errors.New("unknown type")
	}
	return ev, nil
}

func (b *Bridge) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			if err := b.apply(ctx, ev); err != nil && ctx.Err() == nil {
				log.Printf("notification stream owner=%s: apply %s: %v", ev.owner, ev.kind, err)
			}
		}
	}
}

func (b *Bridge) apply(ctx context.Context, ev event) error {
	switch ev.kind {
	case TypeAppointment:
		_, err := b.engine.ApplyIncoming(ctx, ev.owner, ev.appointment)
		return err
	case TypeAppointmentDeleted:
		_, err := b.engine.ApplyRemoteDeletion(ctx, ev.owner, ev.id)
		return err
	case TypeNotification:
		return b.notes.Save(ctx, ev.notification)
	}
	return nil
}

// --------------------------------------------------
// Acknowledgements
// --------------------------------------------------

// MarkRead flags the notification locally, then acknowledges it on the
// socket. Acks that cannot be sent now go out after the next connect.
func (b *Bridge) MarkRead(ctx context.Context, id int64) error {
	owner, ok := b.session.Owner()
	if !ok {
		return httperr.ErrBusiness(httperr.CodeNotLoggedIn)
	}
	found, err := b.notes.MarkRead(ctx, owner, id)
	if err != nil {
		return err
	}
	if !found {
		return httperr.ErrBusiness(httperr.CodeNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[id] = struct{}{}
	b.flushLocked()
	return nil
}

func (b *Bridge) attach(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = conn
	b.flushLocked()
}

func (b *Bridge) detach(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
	conn.Close()
}

func (b *Bridge) flushLocked() {
	if b.conn == nil {
		return
	}
	for id := range b.pending {
		b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := b.conn.WriteJSON(ack{Type: TypeMarkRead, ID: id}); err != nil {
			log.Printf("notification stream: ack %d: %v", id, err)
			return
		}
		delete(b.pending, id)
	}
}
