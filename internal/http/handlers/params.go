package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/http/response"
	"github.com/yungbote/promptgallery-backend/internal/platform/apierr"
	"github.com/yungbote/promptgallery-backend/internal/services"
)

const (
	defaultMaxFileBytes = 64 << 20
	multipartMemory     = 32 << 20
)

// pathID parses :id and writes a 400 when it is not a uuid.
// The other parsers return *apierr.Error for RespondServiceError.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil || id == uuid.Nil {
		response.RespondServiceError(c, apierr.BadRequest(apierr.CodeInvalidID, "invalid id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, apierr.BadRequest(apierr.CodeInvalidID, "invalid id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.BadRequest(apierr.CodeInvalidRequest, "%s must be an integer", name)
	}
	return n, nil
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	return v
}

// searchOptions reads top_k, threshold, role and liked from the query string.
func searchOptions(c *gin.Context) (services.SearchOptions, error) {
	var opts services.SearchOptions
	topK, err := queryInt(c, "top_k", 0)
	if err != nil {
		return opts, err
	}
	if topK < 0 {
		return opts, apierr.BadRequest(apierr.CodeInvalidRequest, "top_k must be positive")
	}
	opts.TopK = topK
	if raw := strings.TrimSpace(c.Query("threshold")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < -1 || f > 1 {
			return opts, apierr.BadRequest(apierr.CodeInvalidRequest, "threshold must be a cosine in [-1, 1]")
		}
		opts.Threshold = &f
	}
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		opts.Role = types.AssetRole(strings.ToLower(raw))
		if !opts.Role.Valid() {
			return opts, apierr.BadRequest(apierr.CodeInvalidRequest, "unknown role %q", raw)
		}
	}
	opts.LikedOnly = queryBool(c, "liked")
	return opts, nil
}

// multipartFiles reads every part under field into memory, rejecting parts over maxBytes.
func multipartFiles(c *gin.Context, field string, maxBytes int64) ([]services.UploadFile, error) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidUpload, fmt.Errorf("invalid multipart form: %w", err))
	}
	if c.Request.MultipartForm == nil {
		return nil, apierr.BadRequest(apierr.CodeInvalidUpload, "no multipart form")
	}
	headers := c.Request.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, apierr.BadRequest(apierr.CodeInvalidUpload, "missing %q", field)
	}
	out := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh, maxBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, services.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, apierr.TooLarge(fh.Filename, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidUpload, fmt.Errorf("open %s: %w", fh.Filename, err))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidUpload, fmt.Errorf("read %s: %w", fh.Filename, err))
	}
	return data, nil
}
