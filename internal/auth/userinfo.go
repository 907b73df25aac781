package auth

import (
	"context"
	"fmt"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"

	"golang.org/x/oauth2"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetUserInfo fetches the signed-in user's name and email with the given
// access token.
func GetUserInfo(ctx context.Context, accessToken string) (_ *UserInfo, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.userinfo.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	oauth2Service, err := goauth2.NewService(
		ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("new oauth2 service: %w", err)
	}

	userInfo, err := oauth2Service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get userinfo: %w", err)
	}

	return &UserInfo{
		Name:  userInfo.Name,
		Email: userInfo.Email,
	}, nil
}
