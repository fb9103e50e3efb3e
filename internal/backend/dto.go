package backend

import "encoding/json"

// DTOs mirror the backend's JSON wire shapes (spec §6). They are
// intentionally flat and decoupled from internal/model; translation
// into domain types happens in internal/conversation and
// internal/bootstrap.

type APIVersionResponse struct {
	Domain       string   `json:"domain"`
	Federation   bool     `json:"federation"`
	Supported    []int    `json:"supported"`
	Development  []int    `json:"development"`
}

type FeatureConfigsResponse struct {
	MLS struct {
		Status struct {
			Status string `json:"status"`
		} `json:"status"`
		Config struct {
			DefaultProtocol    string   `json:"defaultProtocol"`
			AllowedCipherSuites []int   `json:"allowedCipherSuites"`
			DefaultCipherSuite int      `json:"defaultCipherSuite"`
			SupportedProtocols []string `json:"supportedProtocols"`
		} `json:"config"`
	} `json:"mls"`
}

type RegisterClientRequest struct {
	Prekeys    []Prekey `json:"prekeys"`
	LastPrekey Prekey   `json:"lastkey"`
	Type       string   `json:"type"`
}

type Prekey struct {
	Id  uint16 `json:"id"`
	Key string `json:"key"`
}

type RegisterClientResponse struct {
	Id string `json:"id"`
}

type ConversationResponse struct {
	Id       string             `json:"id"`
	Domain   string             `json:"domain"`
	Name     string             `json:"name"`
	GroupId  string             `json:"group_id"`
	TeamId   string             `json:"team_id"`
	Type     int                `json:"type"`
	Protocol string             `json:"protocol"`
	Epoch    uint64             `json:"epoch"`
	Members  MembersResponse    `json:"members"`
}

type MembersResponse struct {
	Others []MemberResponse `json:"others"`
	Self   MemberResponse   `json:"self"`
}

type MemberResponse struct {
	Id     string `json:"id"`
	Domain string `json:"qualified_id_domain"`
	Role   string `json:"conversation_role"`
}

type CreateConversationRequest struct {
	Name         string   `json:"name"`
	QualifiedUsers []QualifiedIdJSON `json:"qualified_users"`
	Type         int      `json:"conversation_type,omitempty"`
	Protocol     string   `json:"protocol"`
}

type QualifiedIdJSON struct {
	Id     string `json:"id"`
	Domain string `json:"domain"`
}

type NotificationEnvelope struct {
	Id          string            `json:"id"`
	Payload     []json.RawMessage `json:"payload"`
	Transient   bool              `json:"transient"`
}

type NotificationPage struct {
	Notifications []NotificationEnvelope `json:"notifications"`
	HasMore       bool                   `json:"has_more"`
}

type KeyPackageClaimResponse struct {
	KeyPackages []KeyPackageEntry `json:"key_packages"`
}

type KeyPackageEntry struct {
	Client     string `json:"client"`
	Domain     string `json:"domain"`
	User       string `json:"user"`
	KeyPackage string `json:"key_package"` // base64
}
