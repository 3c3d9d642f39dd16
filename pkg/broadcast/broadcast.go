// Package broadcast fans a notification out to every registered
// subscription and prunes subscriptions the push service reports as gone.
package broadcast

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/takutakahashi/notify-relay/pkg/mediastore"
	"github.com/takutakahashi/notify-relay/pkg/registry"
	"github.com/takutakahashi/notify-relay/pkg/transport"
)

const notificationTitle = "New shared message"

var (
	// ErrEmptyMessage is returned when the message is empty after trimming.
	ErrEmptyMessage = errors.New("message is required")
	// ErrInvalidImage is returned when the image reference is neither an
	// http(s) URL nor a base64 image data URL.
	ErrInvalidImage = errors.New("image must be a valid URL or uploaded image")
	// ErrImageTooLarge is returned when an uploaded image exceeds the
	// configured ceiling.
	ErrImageTooLarge = errors.New("uploaded image is too large")
)

var dataURLPattern = regexp.MustCompile(`(?i)^data:(image/[\w.+-]+);base64,(.+)$`)

// ImageSource selects the image attached to a broadcast. The zero value
// means no image. When UseRandom is set a random external image is chosen
// and URL is ignored; otherwise URL may hold an http(s) URL or an inline
// base64 data URL.
type ImageSource struct {
	URL       string
	UseRandom bool
}

// RandomImageSource supplies URLs for randomly chosen images.
type RandomImageSource interface {
	RandomURL() string
}

// Result summarizes one broadcast after every delivery attempt settled.
type Result struct {
	Delivered        int    `json:"delivered"`
	Failed           int    `json:"failed"`
	TotalSubscribers int    `json:"totalSubscribers"`
	ImageURL         string `json:"imageUrl"`
}

type payload struct {
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	ImageURL string    `json:"imageUrl"`
	SentAt   time.Time `json:"sentAt"`
}

// Dispatcher orchestrates broadcasts against a subscription registry.
type Dispatcher struct {
	registry       *registry.Registry
	media          *mediastore.Store
	sender         transport.Sender
	images         RandomImageSource
	maxUploadBytes int
}

// NewDispatcher creates a Dispatcher. maxUploadBytes caps the encoded size
// of inline image uploads.
func NewDispatcher(reg *registry.Registry, media *mediastore.Store, sender transport.Sender, images RandomImageSource, maxUploadBytes int) *Dispatcher {
	return &Dispatcher{
		registry:       reg,
		media:          media,
		sender:         sender,
		images:         images,
		maxUploadBytes: maxUploadBytes,
	}
}

// Broadcast resolves the image reference, sends the message to a snapshot of
// the current subscriptions, removes subscriptions whose delivery failed
// permanently, and reports aggregate counts. baseURL is the externally
// reachable origin used to build temp media URLs.
func (d *Dispatcher) Broadcast(ctx context.Context, message string, img ImageSource, baseURL string) (*Result, error) {
	body := strings.TrimSpace(message)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	imageURL, err := d.resolveImage(img, baseURL)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload{
		Title:    notificationTitle,
		Body:     body,
		ImageURL: imageURL,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	id := uuid.NewString()
	subs := d.registry.Snapshot()

	sendErrs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub registry.Subscription) {
			defer wg.Done()
			sendErrs[i] = d.sender.Send(ctx, sub, data)
		}(i, sub)
	}
	wg.Wait()

	delivered := 0
	failed := 0
	for i, sendErr := range sendErrs {
		if sendErr == nil {
			delivered++
			continue
		}

		failed++
		var statusErr *transport.StatusError
		if errors.As(sendErr, &statusErr) && statusErr.Permanent() {
			d.registry.Remove(subs[i].Endpoint)
			log.Printf("Broadcast %s: removed gone subscription %s", id, subs[i].Endpoint)
		} else {
			log.Printf("Broadcast %s: delivery to %s failed: %v", id, subs[i].Endpoint, sendErr)
		}
	}

	return &Result{
		Delivered:        delivered,
		Failed:           failed,
		TotalSubscribers: d.registry.Size(),
		ImageURL:         imageURL,
	}, nil
}

// resolveImage turns the image source into a temp media URL, or "" when no
// image was requested. The original URL or bytes never appear in the push
// payload, only the single-use token URL does.
func (d *Dispatcher) resolveImage(img ImageSource, baseURL string) (string, error) {
	switch {
	case img.UseRandom:
		return d.createTempURL(mediastore.Entry{
			Kind:   mediastore.KindRedirect,
			Target: d.images.RandomURL(),
		}, baseURL)

	case img.URL == "":
		return "", nil

	case isHTTPURL(img.URL):
		return d.createTempURL(mediastore.Entry{
			Kind:   mediastore.KindRedirect,
			Target: img.URL,
		}, baseURL)

	case strings.HasPrefix(strings.ToLower(img.URL), "data:image/"):
		if len(img.URL) > d.maxUploadBytes {
			return "", ErrImageTooLarge
		}
		contentType, data, err := parseImageDataURL(img.URL)
		if err != nil {
			return "", err
		}
		return d.createTempURL(mediastore.Entry{
			Kind:        mediastore.KindBinary,
			ContentType: contentType,
			Data:        data,
		}, baseURL)

	default:
		return "", ErrInvalidImage
	}
}

func (d *Dispatcher) createTempURL(entry mediastore.Entry, baseURL string) (string, error) {
	token, err := d.media.Create(entry)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/", strings.TrimSuffix(baseURL, "/"), token), nil
}

func isHTTPURL(value string) bool {
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func parseImageDataURL(dataURL string) (string, []byte, error) {
	match := dataURLPattern.FindStringSubmatch(dataURL)
	if match == nil {
		return "", nil, ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(match[2])
	if err != nil {
		return "", nil, ErrInvalidImage
	}

	return strings.ToLower(match[1]), data, nil
}
