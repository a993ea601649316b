package core

import (
	"net/mail"
	"strings"

	"github.com/valter-silva-au/tasker/pkg/models"
)

const maxTitleLength = 200

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

// ValidateLogin checks login input before anything is sent.
func ValidateLogin(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "is required"}
	}
	return nil
}

// ValidateRegistration checks registration input before anything is sent.
func ValidateRegistration(username, email, password string) error {
	if strings.TrimSpace(username) == "" {
		return &ValidationError{Field: "username", Reason: "is required"}
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "is required"}
	}
	return nil
}

// ValidateCreateTask checks a new task. The title must be non-blank.
func ValidateCreateTask(in models.CreateTaskInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(title) > maxTitleLength {
		return &ValidationError{Field: "title", Reason: "is longer than 200 characters"}
	}
	return nil
}

// ValidateTaskID rejects empty ids.
func ValidateTaskID(id models.TaskID) error {
	if strings.TrimSpace(string(id)) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	return nil
}
