// Package identity resolves the person a termination ticket refers to
// into a verified directory identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jml/internal/directory"
	"jml/internal/domain"
	"jml/internal/ticket"
)

// ErrAmbiguousName is returned when a display-name search matches more
// than one directory user.
var ErrAmbiguousName = errors.New("display name matches multiple users")

// Attempt records one resolution strategy that ran and what it found.
type Attempt struct {
	Strategy string `json:"strategy"`
	Detail   string `json:"detail"`
}

// ResolutionError reports that no strategy produced a verified identity.
type ResolutionError struct {
	TicketID string
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Detail))
	}
	return fmt.Sprintf("could not resolve identity for ticket %s (%s)", e.TicketID, strings.Join(parts, "; "))
}

// Resolver turns parsed tickets into verified identities by trying
// strategies in a fixed order until one produces a directory match.
type Resolver struct {
	Directory directory.Service
}

// New builds a Resolver against the given directory.
func New(dir directory.Service) *Resolver {
	return &Resolver{Directory: dir}
}

// Resolve runs the strategy chain. The manager is resolved separately
// and its absence never fails the resolution; it is reported through
// the returned warnings instead.
func (r *Resolver) Resolve(ctx context.Context, t domain.Ticket) (domain.Identity, []string, error) {
	var attempts []Attempt

	// Structured field, already normalized by the ticket parser.
	if t.UserEmail != "" {
		if id, ok := ticket.EmployeeIDFromMarker(t.UserEmail); ok {
			user, err := r.Directory.FindUserByEmployeeID(ctx, id)
			switch {
			case err == nil:
				identity, warns := r.finish(ctx, t, user)
				return identity, warns, nil
			case errors.Is(err, directory.ErrNotFound):
				attempts = append(attempts, Attempt{"employee-id", fmt.Sprintf("no user with employee id %s", id)})
			default:
				return domain.Identity{}, nil, fmt.Errorf("employee id lookup: %w", err)
			}
		} else if domain.ValidEmail(t.UserEmail) {
			user, err := r.Directory.FindUserByEmail(ctx, t.UserEmail)
			switch {
			case err == nil:
				identity, warns := r.finish(ctx, t, user)
				return identity, warns, nil
			case errors.Is(err, directory.ErrNotFound):
				attempts = append(attempts, Attempt{"structured-field", fmt.Sprintf("%s not in directory", t.UserEmail)})
			default:
				return domain.Identity{}, nil, fmt.Errorf("email lookup: %w", err)
			}
		}
	} else {
		attempts = append(attempts, Attempt{"structured-field", "no user field on ticket"})
	}

	// Free-text scan over subject and body.
	switch email := ticket.FirstEmail(t.Subject + "\n" + t.Body); {
	case email == "":
		attempts = append(attempts, Attempt{"text-scan", "no email in ticket text"})
	case email == t.UserEmail:
		attempts = append(attempts, Attempt{"text-scan", fmt.Sprintf("only found %s, already tried", email)})
	default:
		user, err := r.Directory.FindUserByEmail(ctx, email)
		switch {
		case err == nil:
			identity, warns := r.finish(ctx, t, user)
			return identity, warns, nil
		case errors.Is(err, directory.ErrNotFound):
			attempts = append(attempts, Attempt{"text-scan", fmt.Sprintf("%s not in directory", email)})
		default:
			return domain.Identity{}, nil, fmt.Errorf("email lookup: %w", err)
		}
	}

	// Display name from the subject, exact match then unique prefix.
	if name := domain.DisplayNameFromSubject(t.Subject); name != "" {
		user, err := r.resolveByName(ctx, name)
		switch {
		case err == nil:
			identity, warns := r.finish(ctx, t, user)
			return identity, warns, nil
		case errors.Is(err, ErrAmbiguousName):
			return domain.Identity{}, nil, fmt.Errorf("ticket %s: %w: %q", t.ID, ErrAmbiguousName, name)
		case errors.Is(err, directory.ErrNotFound):
			attempts = append(attempts, Attempt{"display-name", fmt.Sprintf("no user named %q", name)})
		default:
			return domain.Identity{}, nil, fmt.Errorf("display name lookup: %w", err)
		}
	} else {
		attempts = append(attempts, Attempt{"display-name", "no name in subject"})
	}

	return domain.Identity{}, nil, &ResolutionError{TicketID: t.ID, Attempts: attempts}
}

func (r *Resolver) resolveByName(ctx context.Context, name string) (domain.DirectoryUser, error) {
	matches, err := r.Directory.SearchByDisplayName(ctx, name)
	if err != nil {
		return domain.DirectoryUser{}, err
	}
	var exact []domain.DirectoryUser
	for _, u := range matches {
		if strings.EqualFold(u.DisplayName, name) {
			exact = append(exact, u)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return domain.DirectoryUser{}, ErrAmbiguousName
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		return domain.DirectoryUser{}, ErrAmbiguousName
	}
	return domain.DirectoryUser{}, directory.ErrNotFound
}

// finish attaches the manager. Manager resolution is best effort; a
// miss becomes a warning so runs can report why no data transfer
// target exists.
func (r *Resolver) finish(ctx context.Context, t domain.Ticket, user domain.DirectoryUser) (domain.Identity, []string) {
	id := domain.Identity{
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
	var warnings []string
	if t.ManagerEmail != "" && domain.ValidEmail(t.ManagerEmail) {
		if _, err := r.Directory.FindUserByEmail(ctx, t.ManagerEmail); err == nil {
			id.ManagerEmail = t.ManagerEmail
			return id, nil
		}
		warnings = append(warnings, fmt.Sprintf("ticket manager %s not verified in directory", t.ManagerEmail))
	}
	mgr, err := r.Directory.ManagerOf(ctx, user.Email)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("no manager resolved for %s: %v", user.Email, err))
		return id, warnings
	}
	id.ManagerEmail = mgr.Email
	return id, warnings
}
