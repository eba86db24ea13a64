// Package graphql exposes the global credential operations as a GraphQL
// endpoint.
package graphql

import (
	"context"
	"time"

	gql "github.com/graphql-go/graphql"
	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/gatekeeper"
	"github.com/jrsteele09/go-tenant-auth/token"
)

type resolver struct {
	service    *auth.Service
	gate       *gatekeeper.Gatekeeper
	production bool
}

var userType = gql.NewObject(gql.ObjectConfig{
	Name: "User",
	Fields: gql.Fields{
		"id":                 &gql.Field{Type: gql.NewNonNull(gql.ID)},
		"authMethod":         &gql.Field{Type: gql.String},
		"authId":             &gql.Field{Type: gql.String},
		"name":               &gql.Field{Type: gql.String},
		"email":              &gql.Field{Type: gql.String},
		"isOnline":           &gql.Field{Type: gql.Boolean},
		"lastSeen":           &gql.Field{Type: gql.String},
		"socketId":           &gql.Field{Type: gql.String},
		"profilePicture":     &gql.Field{Type: gql.String},
		"profilePictureLink": &gql.Field{Type: gql.String},
		"createdAt":          &gql.Field{Type: gql.String},
		"updatedAt":          &gql.Field{Type: gql.String},
	},
})

var tokensType = gql.NewObject(gql.ObjectConfig{
	Name: "Tokens",
	Fields: gql.Fields{
		"access_token":  &gql.Field{Type: gql.String},
		"refresh_token": &gql.Field{Type: gql.String},
	},
})

var authResponseType = gql.NewObject(gql.ObjectConfig{
	Name: "AuthResponse",
	Fields: gql.Fields{
		"user":          &gql.Field{Type: userType},
		"access_token":  &gql.Field{Type: gql.String},
		"refresh_token": &gql.Field{Type: gql.String},
	},
})

func requiredString() *gql.ArgumentConfig {
	return &gql.ArgumentConfig{Type: gql.NewNonNull(gql.String)}
}

func newSchema(r *resolver) (gql.Schema, error) {
	query := gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"me": &gql.Field{Type: userType, Resolve: r.me},
		},
	})
	mutation := gql.NewObject(gql.ObjectConfig{
		Name: "Mutation",
		Fields: gql.Fields{
			"register": &gql.Field{
				Type: userType,
				Args: gql.FieldConfigArgument{
					"name":     requiredString(),
					"email":    requiredString(),
					"password": requiredString(),
				},
				Resolve: r.register,
			},
			"login": &gql.Field{
				Type: authResponseType,
				Args: gql.FieldConfigArgument{
					"email":    requiredString(),
					"password": requiredString(),
				},
				Resolve: r.login,
			},
			"refreshToken": &gql.Field{
				Type: tokensType,
				Args: gql.FieldConfigArgument{
					"refresh_token_old": requiredString(),
				},
				Resolve: r.refreshToken,
			},
		},
	})
	return gql.NewSchema(gql.SchemaConfig{Query: query, Mutation: mutation})
}

func stringArg(p gql.ResolveParams, name string) string {
	value, _ := p.Args[name].(string)
	return value
}

func (r *resolver) register(p gql.ResolveParams) (any, error) {
	account, err := r.service.Register(p.Context, auth.Global(), auth.RegisterRequest{
		Name:     stringArg(p, "name"),
		Email:    stringArg(p, "email"),
		Password: stringArg(p, "password"),
	})
	if err != nil {
		return nil, r.fail(err)
	}
	return userMap(account), nil
}

func (r *resolver) login(p gql.ResolveParams) (any, error) {
	result, err := r.service.Login(p.Context, auth.Global(), auth.LoginRequest{
		Email:    stringArg(p, "email"),
		Password: stringArg(p, "password"),
	}, "")
	if err != nil {
		return nil, r.fail(err)
	}
	return map[string]any{
		"user":          userMap(result.User),
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
	}, nil
}

func (r *resolver) refreshToken(p gql.ResolveParams) (any, error) {
	pair, err := r.service.RefreshTokens(p.Context, auth.Global(), auth.RefreshRequest{
		RefreshTokenOld: stringArg(p, "refresh_token_old"),
	})
	if err != nil {
		return nil, r.fail(err)
	}
	return tokensMap(pair), nil
}

func (r *resolver) me(p gql.ResolveParams) (any, error) {
	account, err := r.gate.Authenticate(p.Context, auth.Global(), tokenFrom(p.Context))
	if err != nil {
		return nil, r.fail(err)
	}
	return userMap(account), nil
}

func tokensMap(pair *token.Pair) map[string]any {
	return map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	}
}

func userMap(a *accounts.Account) map[string]any {
	m := map[string]any{
		"id":                 a.ID,
		"authMethod":         a.AuthMethod,
		"authId":             a.AuthID,
		"name":               a.Name,
		"email":              a.Email,
		"isOnline":           a.IsOnline,
		"socketId":           a.SocketID,
		"profilePicture":     a.ProfilePicture,
		"profilePictureLink": a.ProfilePictureLink,
		"createdAt":          a.CreatedAt.Format(time.RFC3339),
		"updatedAt":          a.UpdatedAt.Format(time.RFC3339),
	}
	if a.LastSeen != nil {
		m["lastSeen"] = a.LastSeen.Format(time.RFC3339)
	}
	return m
}

type contextKey struct{}

func withToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, contextKey{}, raw)
}

func tokenFrom(ctx context.Context) string {
	raw, _ := ctx.Value(contextKey{}).(string)
	return raw
}
