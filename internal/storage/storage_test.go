package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/pagemark/internal/config"
	"github.com/jmylchreest/pagemark/internal/logging"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  []string
	putErr  error
	signErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example.com/" + *in.Key + "?sig=1"}, nil
}

// ========================================
// ExportStorage Tests
// ========================================

func TestNewExportStorage_Disabled(t *testing.T) {
	s, err := NewExportStorage(context.Background(), &appconfig.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsEnabled() || s.Bucket() != "" {
		t.Error("expected storage to be disabled")
	}
	if _, err := s.Put(context.Background(), "a.pdf", "# a"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Put() error = %v, want ErrDisabled", err)
	}
}

func TestExportStorage_Put(t *testing.T) {
	fake := &fakeS3{}
	s := newExportStorage(fake, fake, "docs", "exports/", logging.Discard())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	res, err := s.Put(context.Background(), "reports/Q1.final.pdf", "# Q1\n")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("PutObject calls = %d, want 1", len(fake.puts))
	}
	in := fake.puts[0]
	if *in.Bucket != "docs" || *in.ContentType != "text/markdown; charset=utf-8" {
		t.Errorf("bucket/content type = %s/%s", *in.Bucket, *in.ContentType)
	}
	if !strings.HasPrefix(res.Key, "exports/") || !strings.HasSuffix(res.Key, "/Q1.final.md") {
		t.Errorf("Key = %q", res.Key)
	}
	if *in.Key != res.Key || fake.bodies[0] != "# Q1\n" || res.Size != 5 {
		t.Errorf("stored %q=%q size %d", *in.Key, fake.bodies[0], res.Size)
	}
	if !strings.Contains(res.URL, res.Key) {
		t.Errorf("URL = %q", res.URL)
	}
}

func TestExportStorage_PresignFailureKeepsUpload(t *testing.T) {
	fake := &fakeS3{signErr: errors.New("no creds")}
	s := newExportStorage(fake, fake, "docs", "", logging.Discard())
	res, err := s.Put(context.Background(), "a.png", "x")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if res.URL != "" || res.Key == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestExportStorage_PutError(t *testing.T) {
	fake := &fakeS3{putErr: errors.New("access denied")}
	s := newExportStorage(fake, fake, "docs", "", logging.Discard())
	if _, err := s.Put(context.Background(), "a.png", "x"); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("Put() error = %v", err)
	}
}

func TestExportStorage_KeysAreUnique(t *testing.T) {
	s := newExportStorage(&fakeS3{}, nil, "docs", "p/", logging.Discard())
	a, b := s.Key("doc.pdf"), s.Key("doc.pdf")
	if a == b {
		t.Errorf("Key() returned duplicate %q", a)
	}
}
