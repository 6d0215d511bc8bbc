// Package domain holds the plain data-model types. They are hand-written
// structs rather than generated ORM models: see DESIGN.md for why this
// gateway uses pgx repositories instead of ent codegen.
package domain

import "time"

// Organization is the tenant root. Every API key transitively belongs to
// exactly one active Organization.
type Organization struct {
	ID            string
	DisplayName   string
	Active        bool
	RateLimitRPM  int
	SpendLimitNano int64
	CreatedAt     time.Time
}

// Workspace is the isolation unit inside an Organization. Its parent
// organization is immutable once set.
type Workspace struct {
	ID             string
	OrganizationID string
	Name           string
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

// APIKey is a bearer credential. Only
// active ∧ ¬deleted ∧ (expiry = ⊥ ∨ expiry > now) keys authenticate.
type APIKey struct {
	ID              string
	WorkspaceID     string
	OrganizationID  string
	Prefix          string
	ContentHash     string // 64-hex sha256 digest of the raw secret
	Active          bool
	DeletedAt       *time.Time
	ExpiresAt       *time.Time
	SpendLimitNano  *int64
	LastUsedAt      *time.Time
	CreatedAt       time.Time
}

// Usable reports whether k is allowed to authenticate a request at now,
// per the active/not-deleted/not-expired invariant.
func (k APIKey) Usable(now time.Time) bool {
	if !k.Active || k.DeletedAt != nil {
		return false
	}

	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}

	return true
}

// ProviderKind distinguishes backend client flavors.
type ProviderKind string

const (
	ProviderKindInternalStreaming ProviderKind = "internal-streaming"
	ProviderKindExternal          ProviderKind = "external"
)

// Model is a catalog entry. Pricing has a history table; the ledger reads
// the pricing effective at request time via pricing_at.
type Model struct {
	ID              string
	CanonicalName   string
	Aliases         []string
	ContextLength   int
	Verifiable      bool
	OwnedBy         string
	ProviderKind    ProviderKind
	DeletedAt       *time.Time
	Active          bool
}

// Pricing is one row of a Model's pricing history, closed by EffectiveUntil.
type Pricing struct {
	ModelID          string
	InputCostNano    int64 // nano-units per input token
	OutputCostNano   int64 // nano-units per output token
	ImageCostNano    int64 // nano-units per image, 0 if not applicable
	EffectiveFrom    time.Time
	EffectiveUntil   *time.Time // nil = still current
}

// Backend is a runtime object, never persisted: one upstream inference
// endpoint discovered by the Provider Pool.
type Backend struct {
	ID             string
	BaseURL        string
	Models         []string // canonical model names this backend serves
	ProviderKind   ProviderKind
	Healthy        bool
	UnhealthySince time.Time
	RequestCount   int64
}

// Conversation is a workspace-scoped thread. At most one response in a
// conversation may have metadata.root_response = true.
type Conversation struct {
	ID            string
	WorkspaceID   string
	Metadata      map[string]any
	PinnedAt      *time.Time
	ArchivedAt    *time.Time
	DeletedAt     *time.Time
	ClonedFromID  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RootResponseID reads the convention-carrying metadata field, returning
// ("", false) when the conversation has no root response yet.
func (c Conversation) RootResponseID() (string, bool) {
	v, ok := c.Metadata["root_response_id"]
	if !ok {
		return "", false
	}

	s, ok := v.(string)
	return s, ok && s != ""
}

// ResponseStatus is the state of the response state machine.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
)

// Terminal reports whether s is a terminal state; a response never
// leaves a terminal state.
func (s ResponseStatus) Terminal() bool {
	return s == ResponseStatusCompleted || s == ResponseStatusFailed || s == ResponseStatusCancelled
}

// Usage is the token/cost snapshot recorded against a Response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	InputCostNano  int64
	OutputCostNano int64
	TotalCostNano  int64
}

// Response is one completed-or-attempted inference.
type Response struct {
	ID                 string
	WorkspaceID        string
	APIKeyID           string
	ModelID            string
	Status             ResponseStatus
	ConversationID     *string
	PreviousResponseID *string
	ChildResponseIDs   []string
	Usage              *Usage
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ResponseItemKind enumerates the kinds of granular output units.
type ResponseItemKind string

const (
	ItemKindMessage   ResponseItemKind = "message"
	ItemKindToolCall  ResponseItemKind = "tool_call"
	ItemKindReasoning ResponseItemKind = "reasoning"
	ItemKindError     ResponseItemKind = "error"
)

// ResponseItem is a granular output unit stored under a Response and
// referenced from the conversation timeline.
type ResponseItem struct {
	ID         string
	ResponseID string
	Kind       ResponseItemKind
	Payload    map[string]any
	CreatedAt  time.Time
}

// InferenceKind tags the flavor of inference a UsageLogEntry bills for.
type InferenceKind string

const (
	InferenceKindChatCompletion InferenceKind = "chat_completion"
	InferenceKindCompletion     InferenceKind = "completion"
	InferenceKindResponse       InferenceKind = "response"
)

// StopReason categorizes how a stream ended.
type StopReason string

const (
	StopReasonCompleted        StopReason = "completed"
	StopReasonLength           StopReason = "length"
	StopReasonContentFilter    StopReason = "content_filter"
	StopReasonClientDisconnect StopReason = "client_disconnect"
	StopReasonProviderError    StopReason = "provider_error"
	StopReasonTimeout          StopReason = "timeout"
)

// UsageLogEntry is an immutable billing row. At most one row exists per
// (organization_id, inference_id) where inference_id is non-null.
type UsageLogEntry struct {
	ID                 string
	OrganizationID     string
	WorkspaceID        string
	APIKeyID           string
	ResponseID         string
	ModelID            string
	ModelName          string // denormalized canonical name
	InputTokens        int64
	OutputTokens       int64
	TotalTokens        int64
	InputCostNano      int64
	OutputCostNano     int64
	TotalCostNano      int64
	Kind               InferenceKind
	InferenceID        *string // idempotency key
	ProviderRequestID  *string
	StopReason         StopReason
	TTFT               *time.Duration
	AvgInterTokenLatency *time.Duration
	CreatedAt          time.Time
}

// OrganizationBalance is a cached aggregate; invariant:
// total_spent == Σ total_cost across the organization's UsageLogEntries.
type OrganizationBalance struct {
	OrganizationID string
	TotalSpentNano int64
	LastUsageAt    *time.Time
	TotalRequests  int64
	TotalTokens    int64
}

// ChatSignature is the attestation record; primary key is
// (ChatID, SigningAlgo) so several algorithms can coexist per response.
type ChatSignature struct {
	ChatID        string
	Text          string
	Signature     []byte
	SigningAddress string
	SigningAlgo   string
	CreatedAt     time.Time
}
