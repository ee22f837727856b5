package sdk

import "time"

// User is an account on the backend
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the result of Login, Register and Refresh
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int   `json:"expiresIn,omitempty"`
	User      *User `json:"user,omitempty"`
}

// Credentials are sent to the login endpoint
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration creates a new account
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Portfolio groups projects for display
type Portfolio struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Public      bool      `json:"public"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PortfolioInput creates or updates a portfolio
type PortfolioInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

// Project is one entry in a portfolio
type Project struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolioId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectInput creates or updates a project
type ProjectInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AnalyticsEvent is a tracked interaction
type AnalyticsEvent struct {
	Type        string                 `json:"type"`
	PortfolioID string                 `json:"portfolioId,omitempty"`
	ProjectID   string                 `json:"projectId,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// AnalyticsSummary aggregates tracked events for a portfolio
type AnalyticsSummary struct {
	PortfolioID string         `json:"portfolioId"`
	Period      string         `json:"period"`
	Views       int            `json:"views"`
	Visitors    int            `json:"visitors"`
	Events      map[string]int `json:"events"`
	TopProjects []ProjectStat  `json:"topProjects,omitempty"`
}

// ProjectStat is a per-project view count
type ProjectStat struct {
	ProjectID string `json:"projectId"`
	Views     int    `json:"views"`
}

// FileInfo describes an uploaded file
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	URL         string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
