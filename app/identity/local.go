package identity

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

// LocalProvider keeps accounts in the tickrify-local-users key with bcrypt hashes.
// Every read goes to the backend so providers in other processes see new accounts.
type LocalProvider struct {
	accounts *store.Value[[]models.LocalAccount]
	issuer   TokenIssuer
}

func NewLocalProvider(_ context.Context, backend store.Backend, issuer TokenIssuer) *LocalProvider {
	return &LocalProvider{
		accounts: store.Bind(backend, store.KeyLocalUsers, []models.LocalAccount{}),
		issuer:   issuer,
	}
}

func (p *LocalProvider) find(ctx context.Context, email string) (models.LocalAccount, bool) {
	return findAccount(p.accounts.Get(ctx), email)
}

func findAccount(list []models.LocalAccount, email string) (models.LocalAccount, bool) {
	for _, a := range list {
		if a.Email == email {
			return a, true
		}
	}
	return models.LocalAccount{}, false
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	acct, ok := p.find(ctx, email)
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return p.session(acct.User)
}

func (p *LocalProvider) SignUp(ctx context.Context, name, email, password string) (RegisterResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterResult{}, err
	}

	u := models.User{ID: uuid.NewString(), Name: name, Email: email}
	var taken bool
	p.accounts.Update(ctx, func(list []models.LocalAccount) []models.LocalAccount {
		// May rerun on contention; the check is repeated against fresh data.
		if _, taken = findAccount(list, email); taken {
			return list
		}
		next := make([]models.LocalAccount, len(list), len(list)+1)
		copy(next, list)
		return append(next, models.LocalAccount{User: u, PasswordHash: string(hash)})
	})
	if taken {
		return RegisterResult{}, ErrEmailTaken
	}

	sess, err := p.session(u)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{Session: &sess, Message: "Conta criada com sucesso"}, nil
}

// SignOut is a no-op; local tokens expire on their own.
func (p *LocalProvider) SignOut(context.Context, string) error { return nil }

func (p *LocalProvider) UpdateUser(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error) {
	var (
		out   models.User
		found bool
	)
	p.accounts.Update(ctx, func(list []models.LocalAccount) []models.LocalAccount {
		out, found = models.User{}, false
		next := make([]models.LocalAccount, len(list))
		copy(next, list)
		for i := range next {
			if next[i].ID != userID {
				continue
			}
			if upd.Name != nil {
				next[i].Name = *upd.Name
			}
			if upd.Avatar != nil {
				next[i].Avatar = *upd.Avatar
			}
			out, found = next[i].User, true
		}
		return next
	})
	if !found {
		return models.User{}, store.ErrNotFound
	}
	return out, nil
}

func (p *LocalProvider) session(u models.User) (Session, error) {
	token, exp, err := p.issuer.Issue(u.ID, u.Email, u.Name)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}
