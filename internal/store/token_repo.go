package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"golang.org/x/oauth2"
)

type tokenRow struct {
	Account      string `db:"account"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	TokenType    string `db:"token_type"`
	Expiry       int64  `db:"expiry"`
	UpdatedAt    int64  `db:"updated_at"`
}

type tokenRepo struct {
	store *Store
}

func (r *tokenRepo) Load(ctx context.Context, account string) (*oauth2.Token, error) {
	b := entsql.Dialect(r.store.dialect)
	query, args := b.Select("account", "access_token", "refresh_token", "token_type", "expiry", "updated_at").
		From(b.Table("provider_tokens")).
		Where(entsql.EQ("account", account)).
		Query()

	var row tokenRow
	if err := r.store.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &oauth2.Token{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		Expiry:       fromMillis(row.Expiry),
	}, nil
}

func (r *tokenRepo) Save(ctx context.Context, account string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("save token: nil token")
	}
	query, args := entsql.Dialect(r.store.dialect).
		Insert("provider_tokens").
		Columns("account", "access_token", "refresh_token", "token_type", "expiry", "updated_at").
		Values(account, tok.AccessToken, tok.RefreshToken, tok.TokenType,
			toMillis(tok.Expiry), toMillis(r.store.now())).
		OnConflict(
			entsql.ConflictColumns("account"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (r *tokenRepo) Delete(ctx context.Context, account string) error {
	query, args := entsql.Dialect(r.store.dialect).
		Delete("provider_tokens").
		Where(entsql.EQ("account", account)).
		Query()

	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
