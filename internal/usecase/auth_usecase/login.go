package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Password string
}

// token 形（JwtAccessToken相当）
type JwtAccessToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// handlerがJSONにして返す
type LoginOutput struct {
	Token JwtAccessToken `json:"token"`
}

// パスワードが違う（存在しない操作でも同じ応答にする）
var ErrInvalidCredentials = errors.New("invalid credentials")

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 管理セッションのJWTを発行する約束
type AccessTokenIssuer interface {
	Issue(now time.Time) (token string, expiresAt time.Time, err error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// AdminLoginUsecaseは共有の管理者パスワードを照合して
// 管理セッションのJWTを発行する。管理者アカウントは1つだけで、
// 資格情報は設定（bcryptハッシュ）として持つ。
type AdminLoginUsecase struct {
	passwordHash string
	verifier     PasswordVerifier
	issuer       AccessTokenIssuer
	clock        Clock
}

// DI
func NewAdminLoginUsecase(
	passwordHash string,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	clock Clock,
) *AdminLoginUsecase {
	return &AdminLoginUsecase{
		passwordHash: passwordHash,
		verifier:     verifier,
		issuer:       issuer,
		clock:        clock,
	}
}

// ログイン処理を実行する
func (u *AdminLoginUsecase) Execute(ctx context.Context, in LoginInput) (LoginOutput, error) {
	var out LoginOutput

	//パスワード照合（空でも同じエラーにして情報を漏らさない）
	if in.Password == "" {
		return out, ErrInvalidCredentials
	}
	if ok := u.verifier.Verify(in.Password, u.passwordHash); !ok {
		return out, ErrInvalidCredentials
	}

	//AccessToken発行
	now := u.clock.Now()
	accessToken, accessExp, err := u.issuer.Issue(now)
	if err != nil {
		return out, err
	}

	out.Token = JwtAccessToken{
		AccessToken: accessToken,
		ExpiresIn:   int(accessExp.Sub(now).Seconds()),
	}
	return out, nil
}

// bcryptハッシュと平文を比較
type BcryptPasswordVerifier struct{}

// DI
func NewBcryptPasswordVerifier() *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{}
}

// 平文(plain)をbcryptで比較
func (v *BcryptPasswordVerifier) Verify(plain string, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
