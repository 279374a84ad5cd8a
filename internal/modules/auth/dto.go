package auth

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Fullname     string `json:"fullname,omitempty"`
	Email        string `json:"email"`
}

type RegisterRequest struct {
	FirstName       string `json:"firstName" validate:"personname"`
	LastName        string `json:"lastName" validate:"optional_personname"`
	Email           string `json:"email" validate:"loose_email"`
	Password        string `json:"password" validate:"password_complexity"`
	ConfirmPassword string `json:"confirmPassword"`
}

type LogoutRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ValidateResponse is the identity returned to the gateway.
type ValidateResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
	Active      bool     `json:"active"`
}

type InternalUserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Fullname      string `json:"fullname"`
	EmailVerified bool   `json:"emailVerified"`
}
