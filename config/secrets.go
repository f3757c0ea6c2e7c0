package config

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterReader resolves named secrets.
type ParameterReader interface {
	Parameter(ctx context.Context, name string) (string, error)
}

// ParameterStore reads decrypted values from AWS SSM Parameter Store.
type ParameterStore struct {
	client *ssm.Client
}

func NewParameterStore(ctx context.Context) (*ParameterStore, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &ParameterStore{client: ssm.NewFromConfig(cfg)}, nil
}

func (p *ParameterStore) Parameter(ctx context.Context, name string) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	decrypt := true
	result, err := p.client.GetParameter(ctxWithTimeout, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *result.Parameter.Value, nil
}

// Parameters returns the reader for env: Parameter Store in prod, none otherwise.
func Parameters(ctx context.Context, env string) (ParameterReader, error) {
	if env != "prod" {
		return nil, nil
	}
	store, err := NewParameterStore(ctx)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func resolve(ctx context.Context, params ParameterReader, name, fallback string) (string, error) {
	if params == nil || name == "" {
		return fallback, nil
	}
	return params.Parameter(ctx, name)
}

// Credentials returns the exchange API key and secret.
func (e ExchangeConfig) Credentials(ctx context.Context, params ParameterReader) (key, secret string, err error) {
	key, err = resolve(ctx, params, e.APIKeyParam, e.APIKey)
	if err != nil {
		return "", "", err
	}
	secret, err = resolve(ctx, params, e.APISecretParam, e.APISecret)
	if err != nil {
		return "", "", err
	}
	return key, secret, nil
}
