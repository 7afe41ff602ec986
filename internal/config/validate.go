package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Placeholders 是输出文件名模板支持的占位符。
var Placeholders = []string{"{year}", "{months}", "{category}", "{slug}", "{release_years}"}

var (
	categorySlugRE  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	structValidator = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("category", validateCategory)
	_ = v.RegisterValidation("outtpl", validateOutputTemplate)
	_ = v.RegisterValidation("proxyurl", validateProxyURL)
	return v
}

// validateCategory 只检查 slug 形态；未知分类允许（去重时视为无排名）。
func validateCategory(fl validator.FieldLevel) bool {
	return categorySlugRE.MatchString(fl.Field().String())
}

func validateOutputTemplate(fl validator.FieldLevel) bool {
	return CheckOutputTemplate(fl.Field().String()) == nil
}

func validateProxyURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
		return true
	default:
		return false
	}
}

// CheckOutputTemplate 校验输出文件名模板：非空、只含已知占位符、不含路径分隔符。
func CheckOutputTemplate(tpl string) error {
	tpl = strings.TrimSpace(tpl)
	if tpl == "" {
		return errors.New("模板不能为空")
	}
	rest := tpl
	for _, p := range Placeholders {
		rest = strings.ReplaceAll(rest, p, "")
	}
	if strings.ContainsAny(rest, "{}") {
		return fmt.Errorf("未知占位符：%q", tpl)
	}
	if strings.ContainsAny(tpl, `/\`) || strings.Contains(tpl, "..") {
		return fmt.Errorf("模板不能包含路径：%q", tpl)
	}
	return nil
}

func validate(eff EffectiveConfig) error {
	err := structValidator.Struct(eff)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return &Error{Code: ErrCodeInvalid, Err: err}
	}
	// 多个字段同时出错时，优先报告更具体的错误码。
	for _, fe := range ves {
		switch {
		case fe.StructField() == "CalendarYears" && fe.Tag() == "min":
			return &Error{Code: ErrCodeNoYear}
		case fe.StructField() == "Categories" && fe.Tag() == "min":
			return &Error{Code: ErrCodeNoCategory}
		case fe.Tag() == "outtpl":
			return &Error{Code: ErrCodeBadTemplate, Err: CheckOutputTemplate(fmt.Sprint(fe.Value()))}
		}
	}
	return &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("%s", formatValidationError(ves[0]))}
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return field + " 不能为空"
	case "category":
		return fmt.Sprintf("%s 不是合法的分类 slug：%q", field, fe.Value())
	case "proxyurl":
		return fmt.Sprintf("%s 必须是 http/https/socks5 代理地址：%q", field, fe.Value())
	case "http_url":
		return fmt.Sprintf("%s 必须是 http/https 地址：%q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s 只能是 %s，实际是 %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s 不能小于 %s（实际 %v）", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s 不能大于 %s（实际 %v）", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s 未通过 %s 校验", field, fe.Tag())
	}
}
