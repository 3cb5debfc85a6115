package user

import (
	"fmt"
	"unicode"
)

const (
	MinLoginLen    = 3
	MaxLoginLen    = 32
	MinPasswordLen = 8
	// MaxPasswordLen bcrypt учитывает только первые 72 байта
	MaxPasswordLen = 72
)

// Validator - интерфейс для валидации пользовательских данных
type Validator interface {
	ValidateRegister(login, password string) error
	ValidateLogin(login string) error
	ValidatePassword(password string) error
}

// PasswordPolicy требования к паролю
type PasswordPolicy struct {
	MinLength     int
	RequireDigit  bool
	RequireLetter bool
	RequireUpper  bool
}

// DefaultPolicy пароль, который агент может набрать на планшете в поле
func DefaultPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     MinPasswordLen,
		RequireDigit:  true,
		RequireLetter: true,
	}
}

type PasswordValidator struct {
	policy PasswordPolicy
}

func NewPasswordValidator(policy PasswordPolicy) *PasswordValidator {
	if policy.MinLength <= 0 {
		policy.MinLength = MinPasswordLen
	}
	return &PasswordValidator{policy: policy}
}

// ValidateRegister валидирует данные для регистрации
func (v *PasswordValidator) ValidateRegister(login, password string) error {
	if err := v.ValidateLogin(login); err != nil {
		return fmt.Errorf("login validation failed: %w", err)
	}
	if err := v.ValidatePassword(password); err != nil {
		return fmt.Errorf("password validation failed: %w", err)
	}
	return nil
}

// ValidateLogin валидирует логин
func (v *PasswordValidator) ValidateLogin(login string) error {
	if len(login) < MinLoginLen {
		return fmt.Errorf("login must be at least %d characters", MinLoginLen)
	}
	if len(login) > MaxLoginLen {
		return fmt.Errorf("login must be at most %d characters", MaxLoginLen)
	}

	for _, r := range login {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return fmt.Errorf("login can only contain letters, digits, '_', '-', '.'")
		}
	}
	return nil
}

// ValidatePassword валидирует пароль
func (v *PasswordValidator) ValidatePassword(password string) error {
	if len(password) < v.policy.MinLength {
		return fmt.Errorf("password must be at least %d characters", v.policy.MinLength)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLen)
	}

	var hasLetter, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
			hasLetter = true
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if v.policy.RequireLetter && !hasLetter {
		return fmt.Errorf("password must contain at least one letter")
	}
	if v.policy.RequireUpper && !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if v.policy.RequireDigit && !hasDigit {
		return fmt.Errorf("password must contain at least one digit")
	}
	return nil
}
