package handler

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

// APIKeyCheck adapts an auth.Authenticator to the RequireAPIKey middleware.
func APIKeyCheck(a *auth.Authenticator) httpmiddleware.Authenticator {
	return httpmiddleware.AuthenticatorFunc(func(ctx context.Context, key string) error {
		info, err := a.Authenticate(ctx, key)
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			return errors.Wrap(httpmiddleware.ErrUnauthorized, err.Error())
		case err != nil:
			return err
		}
		zctx.From(ctx).Debug("API key accepted",
			zap.String("key_id", info.ID),
			zap.String("key_name", info.Name),
		)
		return nil
	})
}
