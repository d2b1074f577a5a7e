package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

// IdentityFactory produces a fresh pseudo-identity on every call
type IdentityFactory interface {
	Generate() domain.Identity
}

// LinkEvents receives registry notifications after the registry lock is released.
// Implementations must not block.
type LinkEvents interface {
	LinkCreated(link domain.SharedLink)
	LinkAccessed(link domain.SharedLink, entry domain.AccessEntry)
	LinkRemoved(linkID string, reason domain.LinkState)
}

// ArchivedAccess is one row of the audit archive.
type ArchivedAccess struct {
	LinkID    string             `json:"link_id"`
	ShortID   string             `json:"short_id"`
	TargetURL string             `json:"target_url"`
	Entry     domain.AccessEntry `json:"entry"`
}

// ArchivedLink is a link as it was when created.
type ArchivedLink struct {
	ID            string     `json:"id"`
	ShortID       string     `json:"short_id"`
	TargetURL     string     `json:"target_url"`
	IdentityID    string     `json:"identity_id"`
	SharedAddress string     `json:"shared_address"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	MaxUses       *int       `json:"max_uses,omitempty"`
	RemovedAt     *time.Time `json:"removed_at,omitempty"`
	RemovedReason string     `json:"removed_reason,omitempty"`
}

// AccessArchive defines the append-only audit store. It is write-mostly and never
// used to rebuild registry state.
type AccessArchive interface {
	SaveLink(ctx context.Context, link ArchivedLink) error
	MarkRemoved(ctx context.Context, linkID string, reason string, at time.Time) error
	SaveAccess(ctx context.Context, access ArchivedAccess) error
	Dump(ctx context.Context) ([]ArchivedLink, []ArchivedAccess, error) // For export
	Close() error
}

// LinkService defines the link registry operations
type LinkService interface {
	Create(ctx context.Context, in domain.CreateLinkInput) (*domain.SharedLink, error)
	Validate(ctx context.Context, linkID string) (*domain.SharedLink, error)
	RecordAccess(ctx context.Context, linkID string, info domain.AccessInfo) (*domain.Redemption, error)
	Deactivate(ctx context.Context, linkID string) bool
	Get(ctx context.Context, linkID string) (*domain.SharedLink, error)
	GetByShortID(ctx context.Context, shortID string) (*domain.SharedLink, error)
	ListActive(ctx context.Context) []domain.LinkSummary
}

// StatsService defines the read-side statistics
type StatsService interface {
	LinkStats(ctx context.Context, linkID string) (*domain.LinkStats, error)
	GeneralStats(ctx context.Context) domain.GeneralStats
}

// AgentSession is the hub side of one connected agent.
type AgentSession interface {
	AgentID() string
	Messages() <-chan domain.Message
}

// SyncHub defines the agent broadcast operations
type SyncHub interface {
	Connect(agentID string) (AgentSession, error)
	Disconnect(agentID string)
	BroadcastIdentity(identity domain.Identity)
	BroadcastAction(action domain.Action, originAgentID string) int
	BroadcastTestResults(agentID string, results json.RawMessage) int
	SetAgentStatus(agentID string, status domain.AgentStatus) error
	Touch(agentID string)
	Roster() []domain.ConnectedAgent
	CurrentIdentity() domain.Identity
	SendCurrentIdentity(agentID string) error
	RegenerateIdentity() domain.Identity
	UpdateIdentity(patch domain.IdentityPatch) domain.Identity
}
