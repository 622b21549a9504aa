package cognito

import (
	"context"
	"fmt"
	"time"

	cognitosrp "github.com/alexrudd/cognito-srp/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// Credentials is the result of a successful Cognito exchange.
type Credentials struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// Config identifies a Cognito user pool and one account in it.
type Config struct {
	Region     string
	UserPoolID string
	ClientID   string
	Email      string
	Password   string
}

// Provider performs SRP logins and refresh-token exchanges against a
// Cognito user pool. The pool client must allow unauthenticated SRP.
type Provider struct {
	cfg    Config
	client *cip.Client
}

func New(cfg Config) (*Provider, error) {
	if cfg.Region == "" || cfg.UserPoolID == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("cognito pool configuration incomplete")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("cognito account credentials required")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
	}
	return &Provider{cfg: cfg, client: cip.NewFromConfig(awsCfg)}, nil
}

// Authenticate performs a full SRP login and returns fresh credentials.
func (p *Provider) Authenticate(ctx context.Context) (Credentials, error) {
	srp, err := cognitosrp.NewCognitoSRP(p.cfg.Email, p.cfg.Password, p.cfg.UserPoolID, p.cfg.ClientID, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("init srp: %w", err)
	}

	initResp, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserSrpAuth,
		ClientId:       aws.String(srp.GetClientId()),
		AuthParameters: srp.GetAuthParams(),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("initiate auth: %w", err)
	}

	if initResp.ChallengeName != types.ChallengeNameTypePasswordVerifier {
		return Credentials{}, fmt.Errorf("unexpected auth challenge: %s", initResp.ChallengeName)
	}

	responses, err := srp.PasswordVerifierChallenge(initResp.ChallengeParameters, time.Now())
	if err != nil {
		return Credentials{}, fmt.Errorf("password verifier: %w", err)
	}

	challengeResp, err := p.client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName:      types.ChallengeNameTypePasswordVerifier,
		ChallengeResponses: responses,
		ClientId:           aws.String(srp.GetClientId()),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("respond to challenge: %w", err)
	}

	return credentialsFromResult(challengeResp.AuthenticationResult)
}

// Refresh exchanges a refresh token for a fresh ID token. Cognito does
// not rotate refresh tokens, so the input token is carried forward.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, fmt.Errorf("refresh token is empty")
	}

	resp, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(p.cfg.ClientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("refresh auth: %w", err)
	}

	creds, err := credentialsFromResult(resp.AuthenticationResult)
	if err != nil {
		return Credentials{}, err
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}

func credentialsFromResult(result *types.AuthenticationResultType) (Credentials, error) {
	if result == nil || result.IdToken == nil {
		return Credentials{}, fmt.Errorf("authentication result missing id token")
	}

	creds := Credentials{
		Token:     aws.ToString(result.IdToken),
		ExpiresAt: time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	if result.RefreshToken != nil {
		creds.RefreshToken = aws.ToString(result.RefreshToken)
	}
	return creds, nil
}
