package dcaauth

import (
	"net/url"
	"strconv"
	"time"
)

type LicenseType string

const (
	LicenseTrial      LicenseType = "TRIAL"
	LicenseStandard   LicenseType = "STANDARD"
	LicensePremium    LicenseType = "PREMIUM"
	LicenseEnterprise LicenseType = "ENTERPRISE"
)

type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "ACTIVE"
	LicenseInactive  LicenseStatus = "INACTIVE"
	LicenseExpired   LicenseStatus = "EXPIRED"
	LicenseSuspended LicenseStatus = "SUSPENDED"
	LicenseRevoked   LicenseStatus = "REVOKED"
)

type UserRole string

const (
	RoleUser      UserRole = "USER"
	RoleAdmin     UserRole = "ADMIN"
	RoleModerator UserRole = "MODERATOR"
	RoleDeveloper UserRole = "DEVELOPER"
)

// WebhookEvent names an event a webhook can subscribe to.
type WebhookEvent string

const (
	WebhookLicenseCreated     WebhookEvent = "license.created"
	WebhookLicenseActivated   WebhookEvent = "license.activated"
	WebhookLicenseDeactivated WebhookEvent = "license.deactivated"
	WebhookLicenseExpired     WebhookEvent = "license.expired"
	WebhookLicenseRevoked     WebhookEvent = "license.revoked"
	WebhookUserRegistered     WebhookEvent = "user.registered"
	WebhookUserLogin          WebhookEvent = "user.login"
	WebhookUserRoleChanged    WebhookEvent = "user.role_changed"
	WebhookActivationLimit    WebhookEvent = "activation.limit_reached"
	WebhookSuspiciousActivity WebhookEvent = "security.suspicious_activity"
)

type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Username         string         `json:"username"`
	DiscordID        string         `json:"discordId,omitempty"`
	EmailVerified    bool           `json:"emailVerified"`
	TwoFactorEnabled bool           `json:"twoFactorEnabled"`
	Roles            []UserRole     `json:"roles"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role UserRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Product struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Price       float64        `json:"price"`
	Features    []string       `json:"features"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Activation struct {
	ID          string         `json:"id"`
	LicenseID   string         `json:"licenseId"`
	HardwareID  string         `json:"hardwareId"`
	DeviceName  string         `json:"deviceName,omitempty"`
	IPAddress   string         `json:"ipAddress,omitempty"`
	ActivatedAt time.Time      `json:"activatedAt"`
	LastSeenAt  time.Time      `json:"lastSeenAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type License struct {
	ID                 string         `json:"id"`
	Key                string         `json:"key"`
	Type               LicenseType    `json:"type"`
	Status             LicenseStatus  `json:"status"`
	UserID             string         `json:"userId"`
	ProductID          string         `json:"productId"`
	MaxActivations     int            `json:"maxActivations"`
	CurrentActivations int            `json:"currentActivations"`
	ExpiresAt          *time.Time     `json:"expiresAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Metadata           map[string]any `json:"metadata,omitempty"`

	User        *User        `json:"user,omitempty"`
	Product     *Product     `json:"product,omitempty"`
	Activations []Activation `json:"activations,omitempty"`
}

// IsExpired reports whether the license has an expiry in the past.
func (l *License) IsExpired() bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(time.Now())
}

// IsActive reports an ACTIVE, unexpired license.
func (l *License) IsActive() bool {
	return l.Status == LicenseActive && !l.IsExpired()
}

func (l *License) RemainingActivations() int {
	return max(0, l.MaxActivations-l.CurrentActivations)
}

type VerificationResult struct {
	Valid      bool        `json:"valid"`
	License    *License    `json:"license,omitempty"`
	Activation *Activation `json:"activation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Webhook struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Events       []WebhookEvent    `json:"events"`
	Active       bool              `json:"active"`
	Secret       string            `json:"secret,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	MaxRetries   int               `json:"maxRetries"`
	RetryDelayMs int               `json:"retryDelayMs"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

type WebhookDelivery struct {
	ID          string         `json:"id"`
	WebhookID   string         `json:"webhookId"`
	Event       WebhookEvent   `json:"event"`
	Payload     map[string]any `json:"payload"`
	StatusCode  int            `json:"statusCode"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Attempt     int            `json:"attempt"`
	DeliveredAt time.Time      `json:"deliveredAt"`
}

type AuditLog struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Severity   string         `json:"severity"`
	UserID     string         `json:"userId,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	TargetType string         `json:"targetType,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qrCode"`
	BackupCodes []string `json:"backupCodes"`
}

type Analytics struct {
	Licenses    map[string]float64 `json:"licenses"`
	Users       map[string]float64 `json:"users"`
	Activations map[string]float64 `json:"activations"`
	Revenue     map[string]float64 `json:"revenue,omitempty"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

func (p *Page[T]) HasNext() bool     { return p.Page < p.TotalPages }
func (p *Page[T]) HasPrevious() bool { return p.Page > 1 }

// SearchParams are the listing parameters shared by every List call.
type SearchParams struct {
	Page    int               `json:"page,omitempty" validate:"omitempty,min=1"`
	Limit   int               `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Sort    string            `json:"sort,omitempty"`
	Order   string            `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
	Search  string            `json:"search,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Values encodes the parameters as a query string.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	if p.Order != "" {
		v.Set("order", p.Order)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	for k, val := range p.Filters {
		v.Set(k, val)
	}
	return v
}

// Request models.

type CreateLicenseRequest struct {
	Type           LicenseType    `json:"type" validate:"required,oneof=TRIAL STANDARD PREMIUM ENTERPRISE"`
	UserID         string         `json:"userId" validate:"required"`
	ProductID      string         `json:"productId" validate:"required"`
	MaxActivations int            `json:"maxActivations" validate:"min=1,max=1000"`
	ExpiresInDays  *int           `json:"expiresInDays,omitempty" validate:"omitempty,min=1"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ActivateLicenseRequest struct {
	Key        string         `json:"key" validate:"required"`
	HardwareID string         `json:"hardwareId" validate:"required"`
	DeviceName string         `json:"deviceName,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty" validate:"omitempty,ip"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type VerifyLicenseRequest struct {
	Key        string `json:"key" validate:"required"`
	HardwareID string `json:"hardwareId" validate:"required"`
}

type DeactivateLicenseRequest struct {
	Key        string `json:"key" validate:"required"`
	HardwareID string `json:"hardwareId" validate:"required"`
}

type LoginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"twoFactorCode,omitempty" validate:"omitempty,len=6,numeric"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
	Username string `json:"username" validate:"required,min=3,max=50"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

type UpdateUserRequest struct {
	Email    string         `json:"email,omitempty" validate:"omitempty,email"`
	Username string         `json:"username,omitempty" validate:"omitempty,min=3,max=50"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type CreateWebhookRequest struct {
	URL     string            `json:"url" validate:"required,url"`
	Events  []WebhookEvent    `json:"events" validate:"required,min=1"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type UpdateWebhookRequest struct {
	URL     string            `json:"url,omitempty" validate:"omitempty,url"`
	Events  []WebhookEvent    `json:"events,omitempty"`
	Active  *bool             `json:"active,omitempty"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}
