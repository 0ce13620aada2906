// Package conversation carries intent context across turns of a dialogue:
// pronoun resolution, metric inheritance, and time-range overrides.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/intent"
)

type Turn struct {
	Query     string        `json:"query"`
	Intent    intent.Intent `json:"intent"`
	Timestamp time.Time     `json:"timestamp"`
}

// Session is one conversation's rolling history.
type Session struct {
	ConversationID string            `json:"conversation_id"`
	Turns          []Turn            `json:"turns"`
	Entities       map[string]string `json:"entities"`
}

// Clone returns a deep copy of the session. Stores hand out clones so
// concurrent requests on the same conversation never share turn slices or
// the entity map.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	copied := &Session{
		ConversationID: s.ConversationID,
		Entities:       make(map[string]string, len(s.Entities)),
	}
	for pronoun, entity := range s.Entities {
		copied.Entities[pronoun] = entity
	}
	if len(s.Turns) > 0 {
		copied.Turns = make([]Turn, len(s.Turns))
		for i, turn := range s.Turns {
			turn.Intent = cloneIntent(turn.Intent)
			copied.Turns[i] = turn
		}
	}
	return copied
}

func cloneIntent(in intent.Intent) intent.Intent {
	out := in
	if in.TimeRange != nil {
		tr := *in.TimeRange
		out.TimeRange = &tr
	}
	if in.Dimensions != nil {
		out.Dimensions = append([]string(nil), in.Dimensions...)
	}
	if in.Filters != nil {
		out.Filters = make(map[string]string, len(in.Filters))
		for k, v := range in.Filters {
			out.Filters[k] = v
		}
	}
	return out
}

// Store persists sessions between requests.
type Store interface {
	Get(ctx context.Context, conversationID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
}

var pronouns = []string{"它的", "它", "这个指标", "该指标", "this metric", "it"}

// ResolveReference replaces pronouns with the entity they refer to, using
// the most recently queried metric.
func (s *Session) ResolveReference(query string) string {
	resolved := query
	for _, pronoun := range pronouns {
		entity, ok := s.Entities[pronoun]
		if !ok {
			continue
		}
		if strings.Contains(resolved, pronoun) {
			resolved = strings.ReplaceAll(resolved, pronoun, entity)
		}
	}
	return resolved
}

func (s *Session) LastIntent() (intent.Intent, bool) {
	if len(s.Turns) == 0 {
		return intent.Intent{}, false
	}
	return s.Turns[len(s.Turns)-1].Intent, true
}

// AddTurn appends a turn, trims history to maxTurns, and updates the pronoun
// entity table from the resolved metric.
func (s *Session) AddTurn(query string, in intent.Intent, metricName string, maxTurns int) {
	s.Turns = append(s.Turns, Turn{Query: query, Intent: in, Timestamp: time.Now()})
	if maxTurns > 0 && len(s.Turns) > maxTurns {
		s.Turns = s.Turns[len(s.Turns)-maxTurns:]
	}
	if metricName != "" {
		if s.Entities == nil {
			s.Entities = map[string]string{}
		}
		for _, pronoun := range pronouns {
			s.Entities[pronoun] = metricName
		}
	}
}

// Merge folds the previous turn's intent into the current one:
//   - a turn without a metric inherits the previous metric
//   - a fresh time range always overrides the inherited one
//   - dimensions carry over only while the metric stays the same
func Merge(previous, current intent.Intent, registry *catalog.Registry) intent.Intent {
	merged := current
	if merged.Filters == nil {
		merged.Filters = map[string]string{}
	}

	metricInherited := false
	if merged.MetricID == "" && previous.MetricID != "" {
		merged.MetricID = previous.MetricID
		metricInherited = true
		if metric, ok := registry.ByID(previous.MetricID); ok {
			merged.CoreQuery = metric.Name
			merged.Filters["domain"] = metric.Domain
		}
	}

	if merged.TimeRange == nil && previous.TimeRange != nil {
		merged.TimeRange = previous.TimeRange
		merged.Granularity = previous.Granularity
	}
	if merged.TimeRange != nil {
		merged.Filters["time_range"] = merged.TimeRange.String()
	}

	sameMetric := metricInherited || merged.MetricID == previous.MetricID
	if len(merged.Dimensions) == 0 && sameMetric {
		merged.Dimensions = append([]string{}, previous.Dimensions...)
	}
	if merged.Dimensions == nil {
		merged.Dimensions = []string{}
	}
	return merged
}

// Manager hands out sessions and persists them through the configured store.
type Manager struct {
	store    Store
	maxTurns int
}

func NewManager(store Store, maxTurns int) *Manager {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &Manager{store: store, maxTurns: maxTurns}
}

func (m *Manager) MaxTurns() int {
	return m.maxTurns
}

// GetOrCreate loads the session for conversationID, minting a fresh id when
// none was supplied.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID string) (*Session, error) {
	if strings.TrimSpace(conversationID) == "" {
		return &Session{ConversationID: uuid.NewString(), Entities: map[string]string{}}, nil
	}
	session, err := m.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &Session{ConversationID: conversationID, Entities: map[string]string{}}
	}
	return session, nil
}

func (m *Manager) Save(ctx context.Context, session *Session) error {
	return m.store.Save(ctx, session)
}
