package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

func newTestArchive(t *testing.T, name string) *ArchiveRepository {
	t.Helper()
	repo, err := NewArchiveRepository("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestArchive(t, "archive_roundtrip")

	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	maxUses := 2
	link := ports.ArchivedLink{
		ID:            "3f2c9a1e-5b7d-4c1a-9e2f-0a1b2c3d4e5f",
		ShortID:       "3f2c9a1e",
		TargetURL:     "https://example.com/offer",
		IdentityID:    "01HZY0000000000000000000AA",
		SharedAddress: "198.51.100.23",
		CreatedAt:     created,
		ExpiresAt:     created.Add(time.Hour),
		MaxUses:       &maxUses,
	}
	require.NoError(t, repo.SaveLink(ctx, link))
	require.NoError(t, repo.SaveLink(ctx, link))

	unlimited := link
	unlimited.ID = "7a7a7a7a-0000-0000-0000-000000000000"
	unlimited.ShortID = "7a7a7a7a"
	unlimited.MaxUses = nil
	require.NoError(t, repo.SaveLink(ctx, unlimited))

	entry := domain.AccessEntry{
		Timestamp:     created.Add(5 * time.Minute),
		CallerAddress: "203.0.113.9",
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64)",
		Referrer:      "https://news.example.org/",
		Device:        domain.DeviceDesktop,
		Country:       "NL",
	}
	require.NoError(t, repo.SaveAccess(ctx, ports.ArchivedAccess{
		LinkID: link.ID, ShortID: link.ShortID, TargetURL: link.TargetURL, Entry: entry,
	}))

	removedAt := created.Add(2 * time.Hour)
	require.NoError(t, repo.MarkRemoved(ctx, link.ID, string(domain.LinkExhausted), removedAt))
	require.NoError(t, repo.MarkRemoved(ctx, link.ID, string(domain.LinkExpired), removedAt.Add(time.Hour)))

	links, accesses, err := repo.Dump(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)

	got := links[0]
	require.Equal(t, link.ShortID, got.ShortID)
	require.True(t, got.CreatedAt.Equal(created))
	require.Equal(t, 2, *got.MaxUses)
	require.NotNil(t, got.RemovedAt)
	require.True(t, got.RemovedAt.Equal(removedAt))
	require.Equal(t, string(domain.LinkExhausted), got.RemovedReason)

	require.Nil(t, links[1].MaxUses)
	require.Nil(t, links[1].RemovedAt)

	require.Len(t, accesses, 1)
	require.Equal(t, link.ID, accesses[0].LinkID)
	require.True(t, accesses[0].Entry.Timestamp.Equal(entry.Timestamp))
	require.Equal(t, entry.CallerAddress, accesses[0].Entry.CallerAddress)
	require.Equal(t, "NL", accesses[0].Entry.Country)
}

func TestArchiveEmptyDump(t *testing.T) {
	repo := newTestArchive(t, "archive_empty")

	links, accesses, err := repo.Dump(context.Background())
	require.NoError(t, err)
	require.Empty(t, links)
	require.Empty(t, accesses)
}
