package objectstore

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(42, "/tmp/work/report.pdf")

	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		t.Fatalf("key %q should have owner/uuid/name segments", key)
	}
	if parts[0] != "42" {
		t.Errorf("first segment should be the owner id, got %q", parts[0])
	}
	if len(parts[1]) != 36 {
		t.Errorf("second segment should be a uuid, got %q", parts[1])
	}
	if parts[2] != "report.pdf" {
		t.Errorf("key should end with the base filename, got %q", parts[2])
	}

	if ObjectKey(42, "report.pdf") == ObjectKey(42, "report.pdf") {
		t.Error("same-named uploads must not collide")
	}
}
