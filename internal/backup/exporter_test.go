package backup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BruksfildServices01/clinic-sync/internal/db"
	"github.com/BruksfildServices01/clinic-sync/internal/infra/repository"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestExportUploadsOwnerSnapshot(t *testing.T) {
	ctx := context.Background()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "cache.db"), false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	appts := repository.NewAppointmentGormRepository(gdb)
	rx := repository.NewPrescriptionGormRepository(gdb)

	owner := models.Owner{Role: models.RolePatient, ID: 2}
	for _, ap := range []models.Appointment{
		{ID: 1, Date: "2026-06-01", Time: "09:00:00", Status: "Completed", PatientID: 2, DoctorID: 9, IsSynced: true},
		{ID: 2, Date: "2026-06-12", Time: "10:00:00", Status: "Cancelled", PatientID: 2, DoctorID: 9},
		{ID: 3, Date: "2026-06-12", Time: "11:00:00", Status: "Pending", PatientID: 5, DoctorID: 9, IsSynced: true},
	} {
		if err := appts.Upsert(ctx, &ap); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := rx.Upsert(ctx, &models.Prescription{
		ID: 40, AppointmentID: 1, PatientID: 2, DoctorID: 9, IsSynced: true,
		Medications: models.Medications{{Name: "Ibuprofen", Dosage: "400mg", Frequency: "daily"}},
	}); err != nil {
		t.Fatalf("seed prescription: %v", err)
	}

	client := &fakeS3{}
	exp := NewExporter(client, "backups", appts, rx)
	exp.now = func() time.Time { return time.Date(2026, 6, 2, 8, 30, 0, 0, time.UTC) }

	res, err := exp.Export(ctx, owner)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Key != "clinic-sync/patient/2/20260602T083000Z.json" {
		t.Fatalf("unexpected key %q", res.Key)
	}
	if aws.ToString(client.in.Bucket) != "backups" || aws.ToString(client.in.ContentType) != "application/json" {
		t.Fatalf("unexpected put input %+v", client.in)
	}

	var snap Snapshot
	if err := json.Unmarshal(client.body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Appointments) != 2 || len(snap.Prescriptions) != 1 {
		t.Fatalf("snapshot not scoped to owner: %d appointments, %d prescriptions",
			len(snap.Appointments), len(snap.Prescriptions))
	}
	if snap.Pending != 1 || snap.SchemaVersion != models.SchemaVersion {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}

	t.Run("upload failure", func(t *testing.T) {
		client.err = errors.New("access denied")
		if _, err := exp.Export(ctx, owner); err == nil || !strings.Contains(err.Error(), "upload snapshot") {
			t.Fatalf("expected upload error, got %v", err)
		}
	})
}
