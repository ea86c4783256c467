package foundry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// TokenProvider supplies bearer tokens for the agent service.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// tokenRefreshSkew renews cached tokens this long before they expire.
const tokenRefreshSkew = 5 * time.Minute

// AzureTokenProvider obtains tokens from an azcore credential chain and caches
// them until shortly before expiry.
type AzureTokenProvider struct {
	cred  azcore.TokenCredential
	scope string

	mu     sync.Mutex
	cached azcore.AccessToken
}

// NewAzureTokenProvider builds a provider on DefaultAzureCredential, which
// tries managed identity in Azure and developer credentials (Azure CLI, azd)
// locally.
func NewAzureTokenProvider(scope string) (*AzureTokenProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create default azure credential: %w", err)
	}
	return NewTokenProviderFromCredential(cred, scope), nil
}

// NewTokenProviderFromCredential wraps an existing credential.
func NewTokenProviderFromCredential(cred azcore.TokenCredential, scope string) *AzureTokenProvider {
	return &AzureTokenProvider{cred: cred, scope: scope}
}

// Token implements TokenProvider.
func (p *AzureTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.Token != "" && time.Until(p.cached.ExpiresOn) > tokenRefreshSkew {
		return p.cached.Token, nil
	}

	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		return "", fmt.Errorf("acquire token for %s: %w", p.scope, err)
	}
	p.cached = tok
	return tok.Token, nil
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// CredentialMechanism is a coarse label for the identity the process will use.
type CredentialMechanism string

const (
	MechanismManagedIdentity CredentialMechanism = "ManagedIdentity"
	MechanismDeveloper       CredentialMechanism = "DeveloperCredentials"
)

// managedIdentityMarkers are set by Azure hosting environments that expose a
// managed identity endpoint.
var managedIdentityMarkers = []string{
	"IDENTITY_ENDPOINT",
	"MSI_ENDPOINT",
	"WEBSITE_INSTANCE_ID",
	"AZURE_FEDERATED_TOKEN_FILE",
}

// DetectCredentialMechanism inspects the environment through lookup (use
// os.LookupEnv in production).
func DetectCredentialMechanism(lookup func(string) (string, bool)) CredentialMechanism {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range managedIdentityMarkers {
		if v, ok := lookup(key); ok && v != "" {
			return MechanismManagedIdentity
		}
	}
	return MechanismDeveloper
}
