package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/marketgate/internal/model"
)

// AvatarImage は取得したアバター画像。
type AvatarImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Reader は画像データを読み出すio.Readerを返す。
func (a *AvatarImage) Reader() io.Reader {
	return bytes.NewReader(a.Data)
}

// AvatarFetcher はURLで指定されたアバター画像をSSRF防止付きで取得する。
type AvatarFetcher struct {
	client   *http.Client
	validate func(rawURL string) error
	maxSize  int64
}

// NewAvatarFetcher はAvatarFetcherを生成する。
// HTTPクライアントはguardのsafeurlクライアントを使う。
func NewAvatarFetcher(guard *SSRFGuard, timeout time.Duration, maxSize int64) *AvatarFetcher {
	return &AvatarFetcher{
		client:   guard.NewSafeClient(timeout),
		validate: guard.ValidateURL,
		maxSize:  maxSize,
	}
}

// Fetch は画像を取得する。失敗時は*model.APIErrorを返す。
//   - URLの形式不正: INVALID_URL
//   - ブロック対象のホスト: SSRF_BLOCKED
//   - サイズ超過: AVATAR_TOO_LARGE
//   - それ以外: AVATAR_FETCH_FAILED
func (f *AvatarFetcher) Fetch(ctx context.Context, rawURL string) (*AvatarImage, error) {
	if err := f.validate(rawURL); err != nil {
		if errors.Is(err, ErrBlockedURL) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.NewAvatarFetchFailedError("接続できませんでした")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewAvatarFetchFailedError(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, model.NewAvatarFetchFailedError("画像ではありません")
	}

	if resp.ContentLength > f.maxSize {
		return nil, model.NewAvatarTooLargeError(f.maxSize)
	}

	// 上限+1バイトまで読み、超えていればサイズ超過とする
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, model.NewAvatarFetchFailedError("読み込みに失敗しました")
	}
	if int64(len(data)) > f.maxSize {
		return nil, model.NewAvatarTooLargeError(f.maxSize)
	}

	return &AvatarImage{
		Filename:    avatarFilename(req.URL.Path, mediaType),
		ContentType: mediaType,
		Data:        data,
	}, nil
}

// avatarFilename はURLのパスからファイル名を決める。拡張子がなければメディアタイプから補う。
func avatarFilename(urlPath, mediaType string) string {
	name := path.Base(urlPath)
	if name == "/" || name == "." || name == "" {
		name = "avatar"
	}
	if path.Ext(name) == "" {
		name += "." + strings.TrimPrefix(mediaType, "image/")
	}
	return name
}
