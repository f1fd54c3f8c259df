package lkcosmetics

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/events"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
)

// Credentials are the login form values. The password is never logged or
// persisted.
type Credentials struct {
	Matricule string `json:"matricule"`
	Password  string `json:"password"`
}

// String hides the password.
func (c Credentials) String() string {
	return "Credentials{Matricule:" + c.Matricule + " Password:[redacted]}"
}

// GoString hides the password from %#v.
func (c Credentials) GoString() string {
	return c.String()
}

// User is the signed-in operator as the console sees it. Roles always contains
// Role when Role is set.
type User struct {
	ID          int64    `json:"id"`
	Matricule   string   `json:"matricule"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Role        string   `json:"role"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// RoleNames implements permission.Subject. A nil User holds no roles.
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	return u.Roles
}

// PermissionNames implements permission.Subject.
func (u *User) PermissionNames() []string {
	if u == nil {
		return nil
	}
	return u.Permissions
}

// DisplayName prefers the full name, then the matricule.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Matricule
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Roles = slices.Clone(u.Roles)
	out.Permissions = slices.Clone(u.Permissions)
	return &out
}

func (u *User) record() persist.Record {
	return persist.Record{
		ID:          u.ID,
		Matricule:   u.Matricule,
		Email:       u.Email,
		FullName:    u.FullName,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Permissions: slices.Clone(u.Permissions),
	}
}

func userFromRecord(rec *persist.Record) *User {
	if rec == nil {
		return nil
	}
	u := &User{
		ID:          rec.ID,
		Matricule:   rec.Matricule,
		Email:       rec.Email,
		FullName:    rec.FullName,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Role:        rec.Role,
		Permissions: slices.Clone(rec.Permissions),
	}
	u.Roles = deriveRoles(u.Role, nil)
	if u.FirstName == "" && u.LastName == "" {
		u.FirstName, u.LastName = splitFullName(u.FullName)
	}
	return u
}

// wireUser is the user object the backend returns from login and /users/me/.
type wireUser struct {
	ID          int64    `json:"id"`
	Matricule   string   `json:"matricule"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Role        string   `json:"role"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (w *wireUser) user() *User {
	if w == nil {
		return nil
	}
	first, last := w.FirstName, w.LastName
	if first == "" && last == "" {
		first, last = splitFullName(w.FullName)
	}
	return &User{
		ID:          w.ID,
		Matricule:   w.Matricule,
		Email:       w.Email,
		FullName:    w.FullName,
		FirstName:   first,
		LastName:    last,
		Role:        w.Role,
		Roles:       deriveRoles(w.Role, w.Roles),
		Permissions: slices.Clone(w.Permissions),
	}
}

// splitFullName takes the first word as the first name and the rest as the
// last name.
func splitFullName(full string) (string, string) {
	first, last, _ := strings.Cut(full, " ")
	return first, last
}

func deriveRoles(role string, extra []string) []string {
	out := make([]string, 0, 1+len(extra))
	if role != "" {
		out = append(out, role)
	}
	for _, r := range extra {
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// State is a snapshot of the session. The access token is deliberately not
// part of it.
type State struct {
	IsAuthenticated bool
	IsLoading       bool
	Initialized     bool
	LastError       string
	User            *User
}

func (s State) clone() State {
	s.User = s.User.clone()
	return s
}

// Navigator moves the console to another route. The Client calls it after an
// unrecoverable refresh failure.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

// SessionEvent is a structured session lifecycle record.
type SessionEvent = events.Event

// EventSink receives SessionEvent values from the Client's dispatcher.
type EventSink = events.Sink

// NoOpSink discards all events.
type NoOpSink = events.NoOpSink

// ChannelSink is a buffered channel-based EventSink.
type ChannelSink = events.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line.
type JSONWriterSink = events.JSONWriterSink

// SlogSink logs events through a *slog.Logger.
type SlogSink = events.SlogSink

// MultiSink fans events out to several sinks.
type MultiSink = events.MultiSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return events.NewJSONWriterSink(w)
}

// NewSlogSink creates a SlogSink. A nil logger uses slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return events.NewSlogSink(logger)
}

const (
	EventLogin            = "login"
	EventLogout           = "logout"
	EventRefresh          = "refresh"
	EventSessionExpired   = "session_expired"
	EventSessionRestored  = "session_restored"
	EventInitialize       = "initialize"
	EventStorageFailure   = "storage_failure"
	EventLogoutNotifyFail = "logout_notify_failure"
)

func userEventFields(u *User) (id, matricule, role string) {
	if u == nil {
		return "", "", ""
	}
	return strconv.FormatInt(u.ID, 10), u.Matricule, u.Role
}
