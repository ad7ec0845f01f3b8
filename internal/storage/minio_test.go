package storage

import (
	"testing"
	"time"

	"github.com/siteadmin/content-services/internal/config"
	"github.com/stretchr/testify/require"
)

func TestObjectKeys(t *testing.T) {
	s := &MinIOStorage{bucket: "b"}
	require.Equal(t, "pages/home.json", s.objectKey("pages/home.json"))

	run := s.WithPrefix("/" + SnapshotPrefix(time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)) + "/")
	require.Equal(t, "backups/20260504T030201Z/pages/home.json", run.objectKey("pages/home.json"))
	require.Empty(t, s.prefix, "WithPrefix must not modify the receiver")
}

func TestNewMinIOStorageRequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStorage(t.Context(), config.MinIOConfig{Bucket: "b"})
	require.Error(t, err)
}
