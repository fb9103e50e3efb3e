package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// APIVersion fetches GET /api-version.
func (c *Client) APIVersion(ctx context.Context) (*APIVersionResponse, error) {
	resp, err := c.do(ctx, "GET", "/api-version", nil, requestOpts{noAuth: true})
	if err != nil {
		return nil, err
	}
	var out APIVersionResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode api-version: %w", err)
	}
	return &out, nil
}

// FeatureConfigs fetches GET /feature-configs.
func (c *Client) FeatureConfigs(ctx context.Context) (*FeatureConfigsResponse, error) {
	resp, err := c.do(ctx, "GET", "/feature-configs", nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out FeatureConfigsResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode feature-configs: %w", err)
	}
	return &out, nil
}

// RegisterClient performs POST /clients.
func (c *Client) RegisterClient(ctx context.Context, req RegisterClientRequest) (*RegisterClientResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: encode register-client: %w", err)
	}
	resp, err := c.do(ctx, "POST", "/clients", body, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out RegisterClientResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode register-client: %w", err)
	}
	return &out, nil
}

// AttachMlsPublicKey performs PUT /clients/{id} with the MLS signature
// public key for the configured ciphersuite.
func (c *Client) AttachMlsPublicKey(ctx context.Context, clientID string, ciphersuite uint16, publicKey []byte) error {
	body, err := json.Marshal(map[string]interface{}{
		"mls_public_keys": map[string]string{
			ciphersuiteSignatureScheme(ciphersuite): encodeBase64(publicKey),
		},
	})
	if err != nil {
		return fmt.Errorf("backend: encode mls public key: %w", err)
	}
	_, err = c.do(ctx, "PUT", "/clients/"+clientID, body, requestOpts{})
	return err
}

// UploadKeyPackages performs POST /mls/key-packages/self/{deviceId}.
func (c *Client) UploadKeyPackages(ctx context.Context, deviceID string, keyPackagesB64 []string) error {
	body, err := json.Marshal(map[string]interface{}{"key_packages": keyPackagesB64})
	if err != nil {
		return fmt.Errorf("backend: encode key packages: %w", err)
	}
	_, err = c.do(ctx, "POST", "/mls/key-packages/self/"+deviceID, body, requestOpts{})
	return err
}

// ClaimKeyPackages performs POST /mls/key-packages/claim/{domain}/{userId}?ciphersuite=0xNNNN.
func (c *Client) ClaimKeyPackages(ctx context.Context, domain, userID string, ciphersuite uint16) (*KeyPackageClaimResponse, error) {
	path := fmt.Sprintf("/mls/key-packages/claim/%s/%s?ciphersuite=0x%04X", url.PathEscape(domain), url.PathEscape(userID), ciphersuite)
	resp, err := c.do(ctx, "POST", path, nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out KeyPackageClaimResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode key package claim: %w", err)
	}
	return &out, nil
}

// RemovalPublicKeys fetches GET /mls/public-keys.
func (c *Client) RemovalPublicKeys(ctx context.Context) (map[string]string, error) {
	resp, err := c.do(ctx, "GET", "/mls/public-keys", nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode public-keys: %w", err)
	}
	return out, nil
}

// PostCommitBundle performs POST /mls/commit-bundles with the
// commit||groupInfo||welcome? byte concatenation (spec §6).
func (c *Client) PostCommitBundle(ctx context.Context, bundle []byte) error {
	_, err := c.do(ctx, "POST", "/mls/commit-bundles", bundle, requestOpts{contentType: "message/mls"})
	return err
}

// PostMlsMessage performs POST /mls/messages with an MLS application
// ciphertext. noRetry lets AppManager control the single stale-epoch
// retry itself rather than masking it behind backoff.
func (c *Client) PostMlsMessage(ctx context.Context, ciphertext []byte) error {
	_, err := c.do(ctx, "POST", "/mls/messages", ciphertext, requestOpts{contentType: "message/mls", noRetry: true})
	return err
}

// GetConversation performs GET /conversations/{domain}/{id}.
func (c *Client) GetConversation(ctx context.Context, domain, id string) (*ConversationResponse, error) {
	resp, err := c.do(ctx, "GET", fmt.Sprintf("/conversations/%s/%s", domain, id), nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out ConversationResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode conversation: %w", err)
	}
	return &out, nil
}

// GetGroupInfo performs GET /conversations/{domain}/{id}/groupinfo.
func (c *Client) GetGroupInfo(ctx context.Context, domain, id string) ([]byte, error) {
	resp, err := c.do(ctx, "GET", fmt.Sprintf("/conversations/%s/%s/groupinfo", domain, id), nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	return readAll(resp)
}

// GetOneToOneConversation performs GET /one2one-conversations/{domain}/{id}.
func (c *Client) GetOneToOneConversation(ctx context.Context, domain, id string) (*ConversationResponse, error) {
	resp, err := c.do(ctx, "GET", fmt.Sprintf("/one2one-conversations/%s/%s", domain, id), nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out ConversationResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode one2one conversation: %w", err)
	}
	return &out, nil
}

// CreateConversation performs POST /conversations.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (*ConversationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: encode create-conversation: %w", err)
	}
	resp, err := c.do(ctx, "POST", "/conversations", body, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out ConversationResponse
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode create-conversation response: %w", err)
	}
	return &out, nil
}

// DeleteTeamConversation performs DELETE /teams/{teamId}/conversations/{id}.
func (c *Client) DeleteTeamConversation(ctx context.Context, teamID, convID string) error {
	_, err := c.do(ctx, "DELETE", fmt.Sprintf("/teams/%s/conversations/%s", teamID, convID), nil, requestOpts{})
	return err
}

// RemoveMember performs DELETE /conversations/{domain}/{id}/members/{domain}/{userId}.
func (c *Client) RemoveMember(ctx context.Context, convDomain, convID, userDomain, userID string) error {
	path := fmt.Sprintf("/conversations/%s/%s/members/%s/%s", convDomain, convID, userDomain, userID)
	_, err := c.do(ctx, "DELETE", path, nil, requestOpts{})
	return err
}

// UpdateMemberRole performs PUT .../members/{domain}/{userId}.
func (c *Client) UpdateMemberRole(ctx context.Context, convDomain, convID, userDomain, userID, role string) error {
	path := fmt.Sprintf("/conversations/%s/%s/members/%s/%s", convDomain, convID, userDomain, userID)
	body, err := json.Marshal(map[string]string{"conversation_role": role})
	if err != nil {
		return fmt.Errorf("backend: encode role update: %w", err)
	}
	_, err = c.do(ctx, "PUT", path, body, requestOpts{})
	return err
}

// ListConversationIds performs paged POST /conversations/list-ids.
func (c *Client) ListConversationIds(ctx context.Context, pagingState string, size int) (ids []QualifiedIdJSON, nextState string, hasMore bool, err error) {
	body, err := json.Marshal(map[string]interface{}{
		"paging_state": pagingState,
		"size":         size,
	})
	if err != nil {
		return nil, "", false, fmt.Errorf("backend: encode list-ids request: %w", err)
	}
	resp, err := c.do(ctx, "POST", "/conversations/list-ids", body, requestOpts{})
	if err != nil {
		return nil, "", false, err
	}
	var out struct {
		QualifiedConversations []QualifiedIdJSON `json:"qualified_conversations"`
		PagingState            string            `json:"paging_state"`
		HasMore                bool              `json:"has_more"`
	}
	if err := readJSON(resp, &out); err != nil {
		return nil, "", false, fmt.Errorf("backend: decode list-ids response: %w", err)
	}
	return out.QualifiedConversations, out.PagingState, out.HasMore, nil
}

// ListConversations performs POST /conversations/list for a batch of
// ids (spec: "batches of 1000").
func (c *Client) ListConversations(ctx context.Context, ids []QualifiedIdJSON) ([]ConversationResponse, error) {
	body, err := json.Marshal(map[string]interface{}{"qualified_ids": ids})
	if err != nil {
		return nil, fmt.Errorf("backend: encode list-conversations request: %w", err)
	}
	resp, err := c.do(ctx, "POST", "/conversations/list", body, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out struct {
		Found []ConversationResponse `json:"found"`
	}
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode list-conversations response: %w", err)
	}
	return out.Found, nil
}

// LastNotification performs GET /notifications/last, used to seed
// last_notification_id when none is stored yet.
func (c *Client) LastNotification(ctx context.Context) (*NotificationEnvelope, error) {
	resp, err := c.do(ctx, "GET", "/notifications/last", nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out NotificationEnvelope
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode last notification: %w", err)
	}
	return &out, nil
}

// NotificationPage fetches one page of GET /notifications?since=...&size=100&client=....
func (c *Client) NotificationPage(ctx context.Context, since, deviceID string, size int) (*NotificationPage, error) {
	path := fmt.Sprintf("/notifications?size=%d&client=%s", size, url.QueryEscape(deviceID))
	if since != "" {
		path += "&since=" + url.QueryEscape(since)
	}
	resp, err := c.do(ctx, "GET", path, nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	var out NotificationPage
	if err := readJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("backend: decode notification page: %w", err)
	}
	return &out, nil
}

// UploadAsset performs POST /assets/v3 with a pre-built multipart
// body (internal/asset owns encryption/encoding; this method only
// transports the bytes).
func (c *Client) UploadAsset(ctx context.Context, body []byte, contentType string) (assetKey, assetDomain, assetToken string, err error) {
	resp, err := c.do(ctx, "POST", "/assets/v3", body, requestOpts{contentType: contentType})
	if err != nil {
		return "", "", "", err
	}
	var out struct {
		Key    string `json:"key"`
		Domain string `json:"domain"`
		Token  string `json:"token"`
	}
	if err := readJSON(resp, &out); err != nil {
		return "", "", "", fmt.Errorf("backend: decode upload-asset response: %w", err)
	}
	return out.Key, out.Domain, out.Token, nil
}

// DownloadAsset performs GET /assets/v3/{domain}/{key}, attaching the
// asset token query parameter when the asset is not public.
func (c *Client) DownloadAsset(ctx context.Context, domain, key, token string) ([]byte, error) {
	path := fmt.Sprintf("/assets/v3/%s/%s", url.PathEscape(domain), url.PathEscape(key))
	if token != "" {
		path += "?asset_token=" + url.QueryEscape(token)
	}
	resp, err := c.do(ctx, "GET", path, nil, requestOpts{})
	if err != nil {
		return nil, err
	}
	return readAll(resp)
}

// WebSocketURL builds the wss://.../await URL (spec §6). Used by
// internal/listener, which owns the actual connection.
func (c *Client) WebSocketURL(ctx context.Context, deviceID string) (string, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return "", err
	}
	host := c.cfg.APIHost
	host = "wss://" + trimScheme(host)
	return fmt.Sprintf("%s/%s/await?access_token=%s&client=%s", host, c.cfg.APIVersion, url.QueryEscape(token), url.QueryEscape(deviceID)), nil
}

func trimScheme(host string) string {
	for _, prefix := range []string{"https://", "http://", "wss://", "ws://"} {
		if len(host) > len(prefix) && host[:len(prefix)] == prefix {
			return host[len(prefix):]
		}
	}
	return host
}

func ciphersuiteSignatureScheme(ciphersuite uint16) string {
	switch ciphersuite {
	case 0x0002:
		return "ecdsa_secp256r1_sha256"
	case 0x0007:
		return "ecdsa_secp384r1_sha384"
	case 0x0005:
		return "ecdsa_secp521r1_sha512"
	case 0x0001, 0x0003:
		return "ed25519"
	case 0x0004, 0x0006:
		return "ed448"
	default:
		return "ed25519"
	}
}
