package auth

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// Actor is the authenticated caller handed explicitly to services.
type Actor struct {
	UserID    uuid.UUID
	Email     string
	Role      enums.Role
	DealerID  *uuid.UUID
	IP        string
	RequestID string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// OwnsDealer reports whether the actor is the dealer identified by dealerID.
func (a Actor) OwnsDealer(dealerID uuid.UUID) bool {
	return a.Role == enums.RoleDealer && a.DealerID != nil && *a.DealerID == dealerID
}

// ActorFromClaims builds the actor for a verified token. A caller whose email
// domain is on the admin allow-list is treated as admin even when the claim
// says otherwise.
func ActorFromClaims(claims *AccessTokenClaims, adminDomains []string, ip string) Actor {
	actor := Actor{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Role:     claims.Role,
		DealerID: claims.DealerID,
		IP:       ip,
	}
	if actor.Role != enums.RoleAdmin && EmailDomainAllowed(claims.Email, adminDomains) {
		actor.Role = enums.RoleAdmin
	}
	return actor
}

// EmailDomainAllowed reports whether email belongs to one of domains.
func EmailDomainAllowed(email string, domains []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for _, candidate := range domains {
		if strings.ToLower(strings.TrimSpace(candidate)) == domain {
			return true
		}
	}
	return false
}
