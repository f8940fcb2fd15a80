package payload

import (
	"context"
	"os"
	"path/filepath"
)

// 認可済みクライアントへ渡す保護コンテンツの取得口。
// 取得はキーの検証が通った後にだけ呼ばれる。
type Provider interface {
	Fetch(ctx context.Context) (name string, data []byte, err error)
}

// ローカルファイル1つを配るProvider。
type FileProvider struct {
	path string
}

// DI
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Fetch(ctx context.Context) (string, []byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(p.path), data, nil
}

// 配布物をまだ設定していない環境向けの固定メッセージProvider。
type StaticProvider struct {
	name string
	data []byte
}

func NewStaticProvider(name string, data []byte) *StaticProvider {
	return &StaticProvider{name: name, data: data}
}

func (p *StaticProvider) Fetch(ctx context.Context) (string, []byte, error) {
	return p.name, p.data, nil
}
