package accounts

import (
	"regexp"
	"unicode"
)

// Constraints are the field rules applied to accounts. They are supplied from
// outside so deployments can tighten them without touching the hooks.
type Constraints struct {
	UsernameMinLength int
	UsernameMaxLength int
	NameMinLength     int
	NameMaxLength     int
	PasswordMinLength int

	Username  *regexp.Regexp
	Email     *regexp.Regexp
	Phone     *regexp.Regexp
	ImageURL  *regexp.Regexp
	SocialURL *regexp.Regexp
	IPv4      *regexp.Regexp
	IPv6      *regexp.Regexp

	// PasswordStrength reports whether a plaintext password is strong enough.
	PasswordStrength func(password string) bool

	DefaultAvatar string
	Messages      Messages
}

// Messages are the human readable validation messages.
type Messages struct {
	UsernameRequired  string
	UsernameLength    string
	UsernamePattern   string
	EmailRequired     string
	EmailPattern      string
	PasswordRequired  string
	PasswordLength    string
	PasswordStrength  string
	FirstNameRequired string
	LastNameRequired  string
	NameLength        string
	PhonePattern      string
	ImageURL          string
	SocialURL         string
	IPAddress         string
	Status            string
	Role              string
}

// DefaultConstraints returns the rules used in production.
func DefaultConstraints() Constraints {
	return Constraints{
		UsernameMinLength: 3,
		UsernameMaxLength: 30,
		NameMinLength:     2,
		NameMaxLength:     50,
		PasswordMinLength: 6,

		Username:  regexp.MustCompile(`^[a-zA-Z0-9_]+$`),
		Email:     regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`),
		Phone:     regexp.MustCompile(`^\+?[1-9]\d{6,14}$`),
		ImageURL:  regexp.MustCompile(`(?i)^https?://\S+\.(?:png|jpe?g|gif|webp|svg)(?:\?\S*)?$`),
		SocialURL: regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:facebook|twitter|x|linkedin|instagram)\.com/\S+$`),
		IPv4:      regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)$`),
		IPv6:      regexp.MustCompile(`^(?:(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}|(?:[0-9a-fA-F]{1,4}:){0,7}[0-9a-fA-F]{0,4}::(?:[0-9a-fA-F]{1,4}:){0,7}[0-9a-fA-F]{0,4})$`),

		PasswordStrength: MediumStrength,
		DefaultAvatar:    "https://cdn.estatehub.dev/avatars/default.png",

		Messages: Messages{
			UsernameRequired:  "Username is required",
			UsernameLength:    "Username must be between 3 and 30 characters",
			UsernamePattern:   "Username may only contain letters, numbers and underscores",
			EmailRequired:     "Email is required",
			EmailPattern:      "Please provide a valid email address",
			PasswordRequired:  "Password is required",
			PasswordLength:    "Password must be at least 6 characters",
			PasswordStrength:  "Password is too weak",
			FirstNameRequired: "First name is required",
			LastNameRequired:  "Last name is required",
			NameLength:        "Names must be between 2 and 50 characters",
			PhonePattern:      "Please provide a valid international phone number",
			ImageURL:          "Avatar must be an image URL",
			SocialURL:         "Please provide a valid social media URL",
			IPAddress:         "IP address must be a valid IPv4 or IPv6 address",
			Status:            "Unknown account status",
			Role:              "Unknown role",
		},
	}
}

// MediumStrength accepts passwords of six or more characters mixing at least
// two of lower case letters, upper case letters and digits.
func MediumStrength(password string) bool {
	if len([]rune(password)) < 6 {
		return false
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit} {
		if ok {
			classes++
		}
	}
	return classes >= 2
}

func (c Constraints) validIP(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return c.IPv4.MatchString(s) || c.IPv6.MatchString(s)
}
