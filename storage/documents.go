package storage

import (
	"time"

	"chatdesk/model"
)

// AuthDocument is persisted under KeyAuth.
type AuthDocument struct {
	IsLoggedIn  bool       `json:"isLoggedIn"`
	Token       *string    `json:"token"`
	User        *AuthUser  `json:"user"`
	LastChecked *time.Time `json:"lastChecked"`
}

type AuthUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// AppDocument is persisted under KeyApp.
type AppDocument struct {
	SidebarOpen  bool   `json:"sidebarOpen"`
	LastGreeting string `json:"lastGreeting"`
	IsFirstVisit bool   `json:"isFirstVisit"`
}

// ChatDocument is persisted under KeyChat. Request status is transient and
// deliberately has no field here.
type ChatDocument struct {
	Conversations        []model.Conversation     `json:"conversations"`
	ActiveConversationID *string                  `json:"activeConversationId"`
	DefaultSettings      model.GenerationSettings `json:"defaultSettings"`
}

// ProviderDocument is persisted under KeyProviders.
type ProviderDocument struct {
	ConfiguredProviders []model.ConfiguredProvider `json:"configuredProviders"`
	DefaultProviderID   *string                    `json:"defaultProviderId"`
	DefaultModelID      *string                    `json:"defaultModelId"`
}

func DefaultAuthDocument() AuthDocument {
	return AuthDocument{}
}

func DefaultAppDocument() AppDocument {
	return AppDocument{SidebarOpen: true, IsFirstVisit: true}
}

func DefaultChatDocument() ChatDocument {
	return ChatDocument{
		Conversations:   []model.Conversation{},
		DefaultSettings: model.DefaultGenerationSettings(),
	}
}

func DefaultProviderDocument() ProviderDocument {
	return ProviderDocument{ConfiguredProviders: []model.ConfiguredProvider{}}
}
