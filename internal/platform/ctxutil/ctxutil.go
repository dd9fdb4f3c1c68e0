package ctxutil

import "context"

type requestDataKey struct{}

// RequestData carries per-request identity resolved by the auth middleware.
type RequestData struct {
	UserID    string
	UserName  string
	UserEmail string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// UserID returns the authenticated user id, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.UserID
	}
	return ""
}
