package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BruksfildServices01/clinic-sync/internal/config"
	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	rxdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// ObjectPutter is the part of the S3 client the exporter uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Snapshot is the uploaded document.
type Snapshot struct {
	SchemaVersion int                   `json:"schemaVersion"`
	Owner         models.Owner          `json:"owner"`
	CreatedAt     time.Time             `json:"createdAt"`
	Appointments  []models.Appointment  `json:"appointments"`
	Prescriptions []models.Prescription `json:"prescriptions"`
	// Pending counts the records still waiting for a push.
	Pending int `json:"pending"`
}

type Result struct {
	Key           string `json:"key"`
	Bytes         int    `json:"bytes"`
	Appointments  int    `json:"appointments"`
	Prescriptions int    `json:"prescriptions"`
}

type Exporter struct {
	client ObjectPutter
	bucket string
	appts  apptdomain.Repository
	rx     rxdomain.Repository
	now    func() time.Time
}

func NewExporter(client ObjectPutter, bucket string, appts apptdomain.Repository, rx rxdomain.Repository) *Exporter {
	return &Exporter{client: client, bucket: bucket, appts: appts, rx: rx, now: time.Now}
}

// NewS3Client builds a client from static credentials. A custom endpoint
// (MinIO and similar) switches to path-style addressing.
func NewS3Client(cfg config.BackupConfig) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func objectKey(owner models.Owner, at time.Time) string {
	return fmt.Sprintf("clinic-sync/%s/%d/%s.json", owner.Role, owner.ID, at.UTC().Format("20060102T150405Z"))
}

// Export uploads the owner's cached records, unsynced ones included.
func (e *Exporter) Export(ctx context.Context, owner models.Owner) (*Result, error) {
	apps, err := e.appts.QueryByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	rx, err := e.rx.QueryByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		SchemaVersion: models.SchemaVersion,
		Owner:         owner,
		CreatedAt:     e.now().UTC(),
		Appointments:  apps,
		Prescriptions: rx,
	}
	for _, ap := range apps {
		if !ap.IsSynced {
			snap.Pending++
		}
	}
	for _, p := range rx {
		if !p.IsSynced {
			snap.Pending++
		}
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := objectKey(owner, snap.CreatedAt)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"owner":          owner.String(),
			"schema-version": strconv.Itoa(models.SchemaVersion),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}

	log.Printf("backup owner=%s uploaded %s (%d bytes)", owner, key, len(body))
	return &Result{
		Key:           key,
		Bytes:         len(body),
		Appointments:  len(apps),
		Prescriptions: len(rx),
	}, nil
}
