// Package model はドメインモデルを定義する。
package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// UserProfile は認証済みアイデンティティ1件につき1レコード存在するプロフィール。
// uid はIdP側のアカウントIDを主キーとして共有する（ローカルでは採番しない）。
type UserProfile struct {
	UID           string
	UserName      string
	Email         string
	IsAdmin       bool
	Birthday      *Date
	FavoriteColor *FavoriteColor
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FavoriteColor はプロフィールの「好きな色」を表す閉じた列挙型。
// DB側ではVARCHAR + CHECK制約でバリデーションされる。
type FavoriteColor string

const (
	ColorRed    FavoriteColor = "red"
	ColorBlue   FavoriteColor = "blue"
	ColorYellow FavoriteColor = "yellow"
	ColorGray   FavoriteColor = "gray"
	ColorWhite  FavoriteColor = "white"
	ColorBlack  FavoriteColor = "black"
)

// FavoriteColors は許可される全ての色。
var FavoriteColors = []FavoriteColor{
	ColorRed, ColorBlue, ColorYellow, ColorGray, ColorWhite, ColorBlack,
}

// IsValid は値が列挙集合に含まれるかを検証する。
func (c FavoriteColor) IsValid() bool {
	for _, v := range FavoriteColors {
		if c == v {
			return true
		}
	}
	return false
}

// dateLayout は誕生日の日付フォーマット（時刻なし）。
const dateLayout = "2006-01-02"

// Date は時刻を持たない日付。JSONでは "2006-01-02" 形式で表現する。
type Date struct {
	time.Time
}

// NewDate は年月日からDateを生成する。
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate は "2006-01-02" 形式の文字列をパースする。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// String は "2006-01-02" 形式の文字列を返す。
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON はJSON文字列 "2006-01-02" として出力する。
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON はJSON文字列 "2006-01-02" またはnullを受け付ける。
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value はdriver.Valuerを実装する（DATE型カラムへの書き込み用）。
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}

// Scan はsql.Scannerを実装する（DATE型カラムからの読み込み用）。
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = Date{Time: v}
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}
