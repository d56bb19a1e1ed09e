package whatsapp

import (
	"context"
	"testing"
)

func TestWithDBDSNOption(t *testing.T) {
	opts := &Opts{}

	testDSN := "/var/lib/intakebot/test.db"
	WithDBDSN(testDSN)(opts)

	if opts.DBDSN != testDSN {
		t.Errorf("Expected DBDSN to be %q, got %q", testDSN, opts.DBDSN)
	}
}

func TestWithQRCodeOutputOption(t *testing.T) {
	opts := &Opts{}

	testPath := "/tmp/qr.txt"
	WithQRCodeOutput(testPath)(opts)

	if opts.QRPath != testPath {
		t.Errorf("Expected QRPath to be %q, got %q", testPath, opts.QRPath)
	}
}

func TestWithNumericCodeOption(t *testing.T) {
	opts := &Opts{}

	WithNumericCode()(opts)

	if !opts.NumericCode {
		t.Errorf("Expected NumericCode to be true, got false")
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	mock := NewMockClient()

	if err := mock.SendMessage(context.Background(), "5511999999999", "olá"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("expected 1 recorded message, got %d", len(mock.Sent))
	}
	if mock.Sent[0].To != "5511999999999" || mock.Sent[0].Body != "olá" {
		t.Errorf("unexpected recorded message: %+v", mock.Sent[0])
	}
}
