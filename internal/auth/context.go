package auth

import (
	"context"
	"errors"
	"strconv"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxUsername
)

func WithIdentity(ctx context.Context, userID int64, username string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxUsername, username)
	return ctx
}

func UserID(ctx context.Context) (int64, error) {
	if v, ok := ctx.Value(ctxUserID).(int64); ok && v > 0 {
		return v, nil
	}
	return 0, errors.New("user_id not in context")
}

func Username(ctx context.Context) (string, error) {
	if v, ok := ctx.Value(ctxUsername).(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("username not in context")
}

// ParseUserID converts the stringified claim back to the numeric id.
func ParseUserID(claim string) (int64, error) {
	id, err := strconv.ParseInt(claim, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("malformed user_id claim")
	}
	return id, nil
}

// FormatUserID converts a numeric user id to its claim representation.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
