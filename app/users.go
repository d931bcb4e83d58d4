package app

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tickrify1/tickrify.com-sub000/app/identity"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/auth"
)

// UpsertUserFromClaims records the caller in the users table, or in the KV
// store when no database is configured.
func UpsertUserFromClaims(ctx context.Context, ids *identity.Service, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	u := userFromClaims(claims)

	if db == nil {
		if ids == nil {
			return nil
		}
		if cur, ok := ids.CurrentUser(ctx, u.ID); ok {
			if u.Email == "" {
				u.Email = cur.Email
			}
			if u.Name == "" {
				u.Name = cur.Name
			}
			u.Avatar = cur.Avatar
			if cur == u {
				return nil
			}
		}
		ids.Remember(ctx, u)
		return nil
	}

	const q = `
		INSERT INTO users (id, email, name, issuer, last_login)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			name = COALESCE(EXCLUDED.name, users.name),
			last_login = now();
	`
	_, err := db.ExecContext(ctx, q, u.ID, nullIfEmpty(u.Email), nullIfEmpty(u.Name), claims.Issuer)
	return err
}

func userFromClaims(claims *auth.Claims) models.User {
	name := claims.Name
	if name == "" {
		name = readStringClaim(claims.Raw, "given_name")
	}
	if name == "" && claims.Email != "" {
		name = strings.Split(claims.Email, "@")[0]
	}
	return models.User{ID: claims.Subject, Name: name, Email: claims.Email}
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	val, ok := raw[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
