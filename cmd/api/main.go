package main

import (
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/payload"
	"app/internal/server"
	"app/internal/usecase"
	auth "app/internal/usecase/auth_usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

type jwtIssuer struct {
	secret    []byte
	accessTTL time.Duration
}

func newJWTIssuer(secret string, accessTTL time.Duration) *jwtIssuer {
	return &jwtIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
	}
}

// 管理セッション用のアクセストークン
func (i *jwtIssuer) Issue(now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.accessTTL)

	claims := jwt.MapClaims{
		"role": "ADMIN",
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func main() {
	//.envがあれば読む（なければ環境変数だけで動く）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.AccessKey{},
	); err != nil {
		panic(err)
	}

	//Repository（GORM実装）生成
	keyRepo := infraRepo.NewAccessKeyGormRepository(gormDB)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}

	//bcrypt（管理者パスワードの照合）
	verifier := auth.NewBcryptPasswordVerifier()

	//JWT issuer（管理セッションは15分）
	issuer := newJWTIssuer(cfg.JWTSecret, 15*time.Minute)

	//保護コンテンツ
	var provider payload.Provider
	if cfg.PayloadFile != "" {
		provider = payload.NewFileProvider(cfg.PayloadFile)
	} else {
		provider = payload.NewStaticProvider("payload.txt", []byte("access granted\n"))
	}

	//Usecase生成
	loginUC := auth.NewAdminLoginUsecase(cfg.AdminPasswordHash, verifier, issuer, clock)
	keyUC := usecase.NewKeyUsecase(keyRepo, idGen, clock)
	redeemUC := usecase.NewRedeemUsecase(keyRepo, clock)

	//Handler生成
	authH := handler.NewAuthHandler(loginUC)
	adminKeyH := handler.NewAdminKeyHandler(keyUC)
	redeemH := handler.NewRedeemHandler(redeemUC, provider)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	if err := server.Start(addr, cfg, authH, adminKeyH, redeemH); err != nil {
		panic(err)
	}
}
