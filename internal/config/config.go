package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/infra/fsx"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeNoYear 表示显式给出了空的日历年份列表。
	ErrCodeNoYear = "config_no_year"
	// ErrCodeNoCategory 表示显式给出了空的分类列表。
	ErrCodeNoCategory = "config_no_category"
	// ErrCodeBadTemplate 表示输出文件名模板不合法。
	ErrCodeBadTemplate = "config_bad_template"
)

const (
	// FileName 是工作目录下的配置文件名（可选）。
	FileName = "brcal.yaml"

	DefaultOutputPattern = "bluray_{year}_{months}.ics"
	DefaultFetchMode     = "http"
	DefaultDelay         = 500 * time.Millisecond
	DefaultMaxPages      = 1
	DefaultCacheTTL      = 24 * time.Hour
	DefaultBaseURL       = "https://bluray-disc.de"
)

// 环境变量（也可以写在 <dir>/.env；进程环境优先）。
const (
	EnvProxyURL    = "BRCAL_PROXY_URL"
	EnvPostgresDSN = "BRCAL_POSTGRES_DSN"
	EnvFetchMode   = "BRCAL_FETCH_MODE"
	EnvChromeBin   = "BRCAL_CHROME_BIN"
)

// CLIArgs 是命令行可覆盖的字段，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --ignore-production=false 必须能覆盖配置里的 true。
type CLIArgs struct {
	Dir string

	Years    []int
	YearsSet bool

	Months    []int
	MonthsSet bool

	Categories    []string
	CategoriesSet bool

	ReleaseYears    []int
	ReleaseYearsSet bool

	ProductionYears    []int
	ProductionYearsSet bool

	IgnoreProduction    bool
	IgnoreProductionSet bool

	OutputPattern    string
	OutputPatternSet bool

	FetchMode    string
	FetchModeSet bool

	KeepDuplicates    bool
	KeepDuplicatesSet bool
}

// FileConfig 对应 brcal.yaml；server 的 /api/config 也直接收发这个结构。
//
// 列表字段：nil 表示“未配置，用默认值”，空列表表示“显式为空”。
type FileConfig struct {
	CalendarYears    []int    `yaml:"calendar_years,omitempty" json:"calendar_years,omitempty"`
	Months           []int    `yaml:"months,omitempty" json:"months,omitempty"`
	Categories       []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	ReleaseYears     []int    `yaml:"release_years,omitempty" json:"release_years,omitempty"`
	ProductionYears  []int    `yaml:"production_years,omitempty" json:"production_years,omitempty"`
	IgnoreProduction *bool    `yaml:"ignore_production,omitempty" json:"ignore_production,omitempty"`
	OutputPattern    string   `yaml:"output_pattern,omitempty" json:"output_pattern,omitempty"`
	KeepDuplicates   bool     `yaml:"keep_duplicates,omitempty" json:"keep_duplicates,omitempty"`
	CategoryPriority []string `yaml:"category_priority,omitempty" json:"category_priority,omitempty"`

	Fetch  FetchConfig  `yaml:"fetch,omitempty" json:"fetch"`
	Export ExportConfig `yaml:"export,omitempty" json:"export"`
}

type FetchConfig struct {
	Mode          string `yaml:"mode,omitempty" json:"mode,omitempty"`
	ProxyURL      string `yaml:"proxy_url,omitempty" json:"proxy_url,omitempty"`
	DelayMS       *int   `yaml:"delay_ms,omitempty" json:"delay_ms,omitempty"`
	MaxPages      int    `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
	CacheTTLHours *int   `yaml:"cache_ttl_hours,omitempty" json:"cache_ttl_hours,omitempty"`
	NoCache       bool   `yaml:"no_cache,omitempty" json:"no_cache,omitempty"`
	BaseURL       string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	ChromeBin     string `yaml:"chrome_bin,omitempty" json:"chrome_bin,omitempty"`
}

type ExportConfig struct {
	CSV         bool   `yaml:"csv,omitempty" json:"csv,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Dir        string `validate:"required"`
	ConfigPath string

	CalendarYears    []int    `validate:"min=1,dive,min=1950,max=2100"`
	Months           []int    `validate:"dive,min=1,max=12"`
	Categories       []string `validate:"min=1,dive,category"`
	ReleaseYears     []int    `validate:"dive,min=1950,max=2100"`
	ProductionYears  []int    `validate:"dive,min=1900,max=2100"`
	IgnoreProduction bool
	OutputPattern    string `validate:"outtpl"`
	KeepDuplicates   bool

	CategoryPriority []string `validate:"dive,category"`
	Priorities       domain.Priorities

	Fetch  FetchSettings
	Export ExportSettings
}

type FetchSettings struct {
	Mode      string `validate:"oneof=http browser auto"`
	ProxyURL  string `validate:"omitempty,proxyurl"`
	Delay     time.Duration
	MaxPages  int `validate:"min=1,max=50"`
	CacheTTL  time.Duration
	NoCache   bool
	BaseURL   string `validate:"required,http_url"`
	ChromeBin string
}

type ExportSettings struct {
	CSV         bool
	PostgresDSN string
}

// ProductionYearSet 返回制作年份过滤使用的年份：
// production_years → release_years → calendar_years。
func (c EffectiveConfig) ProductionYearSet() []int {
	switch {
	case len(c.ProductionYears) > 0:
		return c.ProductionYears
	case len(c.ReleaseYears) > 0:
		return c.ReleaseYears
	default:
		return c.CalendarYears
	}
}

// OutDir 是导出文件所在目录。
func (c EffectiveConfig) OutDir() string { return filepath.Join(c.Dir, "out") }

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNoYear:
		return fmt.Sprintf("%s：至少需要一个日历年份", e.Code)
	case ErrCodeNoCategory:
		return fmt.Sprintf("%s：至少需要一个分类", e.Code)
	case ErrCodeBadTemplate:
		if e.Err != nil {
			return fmt.Sprintf("%s：输出文件名模板无效：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：输出文件名模板无效", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取 <dir>/brcal.yaml（可选）与 <dir>/.env（可选），然后与 CLI 参数合并为最终配置。
//
// dir：CLI 给出时相对 cwd 解析；否则就是 cwd。
//
// 覆盖优先级（固定）：CLI > 进程环境 > .env > brcal.yaml > 默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	dir := cwdAbs
	if strings.TrimSpace(cli.Dir) != "" {
		dir = absCleanFrom(cwdAbs, cli.Dir)
	}

	cfgPath := filepath.Join(dir, FileName)
	fc, _, err := ReadFile(dir)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	env, err := ReadEnv(dir)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(dir, ".env"), Err: err}
	}
	return Merge(dir, fc, cli, env, time.Now())
}

// ReadFile 读取并解析 <dir>/brcal.yaml。exists 表示文件是否存在（不存在不算错误）。
func ReadFile(dir string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// Save 校验后原子写入 <dir>/brcal.yaml。
func Save(fs afero.Fs, dir string, fc FileConfig) error {
	if _, err := Merge(dir, fc, CLIArgs{}, nil, time.Now()); err != nil {
		return err
	}
	b, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(fs, dir, FileName, b)
}

// ReadEnv 返回 BRCAL_* 环境变量：先读 <dir>/.env，再用进程环境覆盖。
func ReadEnv(dir string) (map[string]string, error) {
	env := map[string]string{}
	p := filepath.Join(dir, ".env")
	if _, err := os.Stat(p); err == nil {
		m, err := godotenv.Read(p)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			env[k] = v
		}
	}
	for _, k := range []string{EnvProxyURL, EnvPostgresDSN, EnvFetchMode, EnvChromeBin} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env, nil
}

// Merge 把文件配置、环境变量与 CLI 参数合并为最终配置并校验。纯函数（now 只用于默认年份）。
func Merge(dir string, fc FileConfig, cli CLIArgs, env map[string]string, now time.Time) (EffectiveConfig, error) {
	cfgPath := filepath.Join(dir, FileName)
	eff := EffectiveConfig{
		Dir:              dir,
		ConfigPath:       cfgPath,
		CalendarYears:    pickInts(fc.CalendarYears, []int{now.Year()}),
		Months:           pickInts(fc.Months, nil),
		Categories:       pickStrings(fc.Categories, []string{domain.DefaultCategory}),
		ReleaseYears:     pickInts(fc.ReleaseYears, nil),
		ProductionYears:  pickInts(fc.ProductionYears, nil),
		IgnoreProduction: true,
		OutputPattern:    DefaultOutputPattern,
		KeepDuplicates:   fc.KeepDuplicates,
		CategoryPriority: normStrings(fc.CategoryPriority),
	}
	if fc.IgnoreProduction != nil {
		eff.IgnoreProduction = *fc.IgnoreProduction
	}
	if strings.TrimSpace(fc.OutputPattern) != "" {
		eff.OutputPattern = strings.TrimSpace(fc.OutputPattern)
	}

	f := fc.Fetch
	eff.Fetch = FetchSettings{
		Mode:      strings.ToLower(strings.TrimSpace(f.Mode)),
		ProxyURL:  strings.TrimSpace(f.ProxyURL),
		Delay:     DefaultDelay,
		MaxPages:  f.MaxPages,
		CacheTTL:  DefaultCacheTTL,
		NoCache:   f.NoCache,
		BaseURL:   strings.TrimRight(strings.TrimSpace(f.BaseURL), "/"),
		ChromeBin: strings.TrimSpace(f.ChromeBin),
	}
	if f.DelayMS != nil {
		if *f.DelayMS < 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("fetch.delay_ms 不能为负数")}
		}
		eff.Fetch.Delay = time.Duration(*f.DelayMS) * time.Millisecond
	}
	if f.CacheTTLHours != nil {
		if *f.CacheTTLHours < 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("fetch.cache_ttl_hours 不能为负数")}
		}
		eff.Fetch.CacheTTL = time.Duration(*f.CacheTTLHours) * time.Hour
	}
	if eff.Fetch.MaxPages == 0 {
		eff.Fetch.MaxPages = DefaultMaxPages
	}
	if eff.Fetch.BaseURL == "" {
		eff.Fetch.BaseURL = DefaultBaseURL
	}
	eff.Export = ExportSettings{CSV: fc.Export.CSV, PostgresDSN: strings.TrimSpace(fc.Export.PostgresDSN)}

	// 环境变量：覆盖文件中的传输与密钥类字段。
	if v := strings.TrimSpace(env[EnvProxyURL]); v != "" {
		eff.Fetch.ProxyURL = v
	}
	if v := strings.TrimSpace(env[EnvPostgresDSN]); v != "" {
		eff.Export.PostgresDSN = v
	}
	if v := strings.TrimSpace(env[EnvFetchMode]); v != "" {
		eff.Fetch.Mode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(env[EnvChromeBin]); v != "" {
		eff.Fetch.ChromeBin = v
	}

	// CLI：最高优先级。
	if cli.YearsSet {
		eff.CalendarYears = nonNilInts(cli.Years)
	}
	if cli.MonthsSet {
		eff.Months = nonNilInts(cli.Months)
	}
	if cli.CategoriesSet {
		eff.Categories = normStrings(cli.Categories)
		if eff.Categories == nil {
			eff.Categories = []string{}
		}
	}
	if cli.ReleaseYearsSet {
		eff.ReleaseYears = nonNilInts(cli.ReleaseYears)
	}
	if cli.ProductionYearsSet {
		eff.ProductionYears = nonNilInts(cli.ProductionYears)
	}
	if cli.IgnoreProductionSet {
		eff.IgnoreProduction = cli.IgnoreProduction
	}
	if cli.OutputPatternSet {
		eff.OutputPattern = strings.TrimSpace(cli.OutputPattern)
	}
	if cli.FetchModeSet {
		eff.Fetch.Mode = strings.ToLower(strings.TrimSpace(cli.FetchMode))
	}
	if cli.KeepDuplicatesSet {
		eff.KeepDuplicates = cli.KeepDuplicates
	}
	if eff.Fetch.Mode == "" {
		eff.Fetch.Mode = DefaultFetchMode
	}

	eff.CalendarYears = uniqInts(eff.CalendarYears)
	eff.Months = uniqInts(eff.Months)
	eff.ReleaseYears = uniqInts(eff.ReleaseYears)
	eff.ProductionYears = uniqInts(eff.ProductionYears)
	eff.Categories = uniqStrings(eff.Categories)

	if err := validate(eff); err != nil {
		return EffectiveConfig{}, withPath(err, cfgPath)
	}

	if len(eff.CategoryPriority) > 0 {
		eff.Priorities = domain.PrioritiesFromOrder(eff.CategoryPriority)
	} else {
		eff.Priorities = domain.DefaultPriorities()
	}
	return eff, nil
}

func withPath(err error, path string) error {
	var ce *Error
	if errors.As(err, &ce) {
		ce.Path = path
		return ce
	}
	return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
}

// ParseIntList 解析逗号分隔的整数列表（例如 "2025, 2026"）。空串返回空列表。
func ParseIntList(s string) ([]int, error) {
	out := []int{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("不是整数：%q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseList 解析逗号分隔的字符串列表。空串返回空列表。
func ParseList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pickInts(v, def []int) []int {
	if v == nil {
		return def
	}
	return append([]int{}, v...)
}

func pickStrings(v, def []string) []string {
	if v == nil {
		return def
	}
	out := normStrings(v)
	if out == nil {
		return []string{}
	}
	return out
}

func nonNilInts(v []int) []int {
	return append([]int{}, v...)
}

func normStrings(v []string) []string {
	var out []string
	for _, s := range v {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func uniqInts(v []int) []int {
	if v == nil {
		return nil
	}
	seen := make(map[int]struct{}, len(v))
	out := make([]int, 0, len(v))
	for _, n := range v {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func uniqStrings(v []string) []string {
	if v == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(v))
	out := make([]string, 0, len(v))
	for _, s := range v {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// WithDefaults 为未设置的日历字段填入默认值，用于展示（例如 web 界面的配置表单）。
// fetch/export 保持原样，避免把环境变量里的值回写进文件。
func WithDefaults(fc FileConfig, now time.Time) FileConfig {
	fc.CalendarYears = pickInts(fc.CalendarYears, []int{now.Year()})
	fc.Months = nonNilInts(fc.Months)
	fc.Categories = pickStrings(fc.Categories, []string{domain.DefaultCategory})
	fc.ReleaseYears = nonNilInts(fc.ReleaseYears)
	fc.ProductionYears = nonNilInts(fc.ProductionYears)
	if fc.IgnoreProduction == nil {
		v := true
		fc.IgnoreProduction = &v
	}
	if strings.TrimSpace(fc.OutputPattern) == "" {
		fc.OutputPattern = DefaultOutputPattern
	}
	return fc
}
