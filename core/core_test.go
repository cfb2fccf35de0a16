package core

import (
	"net/mail"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Hello World", CleanString("  Hello World \n"))
	assert.Equal(t, "hello@test.cd", CleanString(" Hello@Test.cd ", true))
	assert.Equal(t, "", CleanString("   "))
}

func TestIsKind(t *testing.T) {
	errExpired := NewDomainError(ErrExpired, "code expired")

	assert.True(t, IsKind(errExpired, ErrExpired))
	assert.True(t, IsKind(errors.Wrap(errExpired, "verifying"), ErrExpired))
	assert.False(t, IsKind(errExpired, ErrNotFound))
	assert.False(t, IsKind(errors.New("lol"), ErrExpired))
	assert.Equal(t, "code expired", errExpired.Error())
	assert.True(t, errors.Is(errExpired, ErrExpired))
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "reason: required", NewValidationError(nil, FieldError{Field: "reason", Error: "required"}).Error())
	assert.Equal(t, "lol", NewValidationError(errors.New("lol")).Error())
	assert.Equal(t, "", NewValidationError(nil).Error())
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("bye"), "serving")))
	assert.False(t, IsShutdown(errors.New("bye")))
}

func TestDBOrdering_String(t *testing.T) {
	assert.Equal(t, "student_id ASC", DBOrdering{Field: "student_id", Ascending: true}.String())
	assert.Equal(t, "updated_at DESC", DBOrdering{Field: "updated_at"}.String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-03-04 ")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04T00:00:00Z", d.Format("2006-01-02T15:04:05Z07:00"))

	for _, s := range []string{"", "04/03/2024", "2024-02-30", "2024-03-04T08:00:00Z"} {
		_, err := ParseDate(s)
		assert.Error(t, err, s)
	}
}

func TestInitValidators(t *testing.T) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)

	type form struct {
		Name string `json:"name" validate:"required,notblank"`
		Date string `json:"date" validate:"required,isodate"`
	}
	translate := func(err error) map[string]string {
		errs := make(map[string]string)
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			for _, e := range vErrs {
				errs[e.Field()] = e.Translate(translator)
			}
		}
		return errs
	}

	assert.NoError(t, validate.Struct(form{Name: "Amani", Date: "2024-03-04"}))
	assert.Equal(t,
		map[string]string{"name": "this field is required", "date": "this field is required"},
		translate(validate.Struct(form{})),
	)
	assert.Equal(t,
		map[string]string{"name": "this field cannot be blank", "date": "must be a date formatted as YYYY-MM-DD"},
		translate(validate.Struct(form{Name: "  ", Date: "tomorrow"})),
	)
}

func TestEmailMessage_Render(t *testing.T) {
	site := SiteData{AppName: "Masomo", FrontendBaseURL: "http://localhost:3000"}

	t.Run("template", func(t *testing.T) {
		msg := &EmailMessage{
			To:           []mail.Address{{Address: "parent@test.cd"}},
			TemplateName: "attendance_mismatch",
			TemplateData: map[string]string{"Name": "Mama", "SubjectID": "amani", "Date": "2024-03-04", "Reason": "bus <3"},
		}
		require.NoError(t, msg.Render(site))
		assert.True(t, msg.HasRecipients())
		assert.True(t, msg.HasContent())
		assert.Contains(t, msg.TextContent, "amani")
		assert.Contains(t, msg.TextContent, "bus <3")
		assert.Contains(t, msg.TextContent, "The Masomo team")
		assert.Contains(t, msg.HTMLContent, "bus &lt;3", "html content is escaped")
	})

	t.Run("missing data", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "otp_code", TemplateData: map[string]string{"Name": "Mwalimu"}}
		assert.Error(t, msg.Render(site))
	})

	t.Run("unknown template", func(t *testing.T) {
		msg := &EmailMessage{TemplateName: "lol"}
		assert.EqualError(t, msg.Render(site), `unknown email template "lol"`)
	})

	t.Run("plain body", func(t *testing.T) {
		msg := &EmailMessage{BodyStr: "hello"}
		require.NoError(t, msg.Render(site))
		assert.Equal(t, "hello", msg.TextContent)
		assert.False(t, msg.HasRecipients())
	})
}
