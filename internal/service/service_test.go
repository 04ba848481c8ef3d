package service_test

import (
	"errors"
	"net/url"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/pageinfo/pageinfo/internal/capture"
	"github.com/pageinfo/pageinfo/internal/common/configtypes"
	"github.com/pageinfo/pageinfo/internal/har"
	"github.com/pageinfo/pageinfo/internal/pipeline"
	"github.com/pageinfo/pageinfo/internal/service"
	"github.com/pageinfo/pageinfo/internal/storage"
)

var _ = Describe("Capture Service", func() {
	var (
		mr       *miniredis.Miniredis
		store    *storage.Store
		capturer *fakeCapturer
		browser  *fakeBrowser
		recorder *fakeRecorder
		cfg      service.Config
		srv      *service.Server
		client   *testClient
	)

	start := func(withStore bool) {
		var svcStore service.Store
		opts := pipeline.Options{Source: "service"}
		if withStore {
			svcStore = store
			opts.Store = store
		}
		runner := pipeline.New(capturer, opts, zap.NewNop())
		srv = service.New(runner, svcStore, browser, recorder, cfg, zap.NewNop())
		client = newTestClient(srv.Handler())
	}

	postCapture := func(body any) (int, []byte) {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		return client.do(fasthttp.MethodPost, "/capture", data)
	}

	decodeError := func(body []byte) service.ErrorResponse {
		var resp service.ErrorResponse
		Expect(json.Unmarshal(body, &resp)).To(Succeed())
		return resp
	}

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		store, err = storage.New(&configtypes.RedisConfig{Addr: mr.Addr()},
			storage.Options{TTL: time.Hour, Codec: har.CodecGzip}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		client = nil
		capturer = &fakeCapturer{}
		browser = &fakeBrowser{alive: true}
		recorder = &fakeRecorder{}
		cfg = service.Config{ServerID: "test-1", MaxConcurrent: 2, RequestTimeout: 10 * time.Second}
	})

	AfterEach(func() {
		if client != nil {
			client.close()
		}
		_ = store.Close()
		mr.Close()
	})

	Describe("POST /capture", func() {
		It("captures a page and returns the report and page info", func() {
			start(true)

			status, body := postCapture(map[string]any{"url": "https://shop.example.com/", "label": "home"})
			Expect(status).To(Equal(fasthttp.StatusOK))

			var resp service.CaptureResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Success).To(BeTrue())
			Expect(resp.CaptureID).To(HaveSuffix("-home"))
			Expect(resp.Stored).To(BeTrue())
			Expect(resp.Report.TotalRequests).To(Equal(2))
			Expect(resp.Report.ThirdPartyRequests).To(Equal(1))
			Expect(resp.Info).NotTo(BeNil())
			Expect(resp.Info.Title).To(Equal("Sample Shop"))
			Expect(resp.Content).To(BeEmpty())
			Expect(resp.HAR).To(BeNil())
			Expect(capturer.lastSettle()).To(Equal(time.Duration(0)))
			Expect(recorder.count("capture 200")).To(Equal(1))
		})

		It("includes content and HAR on request and honors settle", func() {
			start(true)

			status, body := postCapture(map[string]any{
				"url":             "https://shop.example.com/",
				"settle":          "2s",
				"include_content": true,
				"include_har":     true,
			})
			Expect(status).To(Equal(fasthttp.StatusOK))

			var resp service.CaptureResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Content).To(ContainSubstring("<title>Sample Shop</title>"))
			Expect(resp.HAR).NotTo(BeNil())
			Expect(resp.HAR.Log.Entries).To(HaveLen(2))
			Expect(capturer.lastSettle()).To(Equal(2 * time.Second))
		})

		It("rejects malformed bodies", func() {
			start(true)

			status, body := client.do(fasthttp.MethodPost, "/capture", []byte("{not json"))
			Expect(status).To(Equal(fasthttp.StatusBadRequest))
			Expect(decodeError(body).ErrorType).To(Equal(service.ErrorTypeInvalidRequest))
		})

		DescribeTable("rejects invalid targets",
			func(target string) {
				start(true)

				status, body := postCapture(map[string]any{"url": target})
				Expect(status).To(Equal(fasthttp.StatusBadRequest))
				Expect(decodeError(body).ErrorType).To(Equal(service.ErrorTypeInvalidURL))
			},
			Entry("empty", ""),
			Entry("ftp scheme", "ftp://example.com/"),
			Entry("loopback", "http://127.0.0.1:8080/"),
			Entry("localhost", "http://localhost/"),
		)

		It("allows private targets when configured", func() {
			cfg.AllowPrivate = true
			start(true)

			status, _ := postCapture(map[string]any{"url": "http://127.0.0.1:8080/"})
			Expect(status).To(Equal(fasthttp.StatusOK))
		})

		It("rejects settle outside the allowed range", func() {
			cfg.MaxSettle = 5 * time.Second
			start(true)

			status, body := postCapture(map[string]any{"url": "https://example.com/", "settle": "10s"})
			Expect(status).To(Equal(fasthttp.StatusBadRequest))
			Expect(decodeError(body).Error).To(ContainSubstring("settle"))
		})

		It("maps navigation failures to 502", func() {
			capturer.err = errors.Join(capture.ErrNavigate, errors.New("net::ERR_NAME_NOT_RESOLVED"))
			start(true)

			status, body := postCapture(map[string]any{"url": "https://missing.example.com/"})
			Expect(status).To(Equal(fasthttp.StatusBadGateway))
			resp := decodeError(body)
			Expect(resp.ErrorType).To(Equal(capture.OutcomeNavigate))
			Expect(resp.Error).To(ContainSubstring("ERR_NAME_NOT_RESOLVED"))
		})

		It("maps capture deadlines to 504", func() {
			capturer.err = errors.Join(capture.ErrNavigate, capture.ErrCaptureTimeout)
			start(true)

			status, body := postCapture(map[string]any{"url": "https://slow.example.com/"})
			Expect(status).To(Equal(fasthttp.StatusGatewayTimeout))
			Expect(decodeError(body).ErrorType).To(Equal(capture.OutcomeTimeout))
		})

		It("reports an expired request budget as a timeout", func() {
			cfg.RequestTimeout = 100 * time.Millisecond
			capturer.block = make(chan struct{})
			start(true)

			status, body := postCapture(map[string]any{"url": "https://hanging.example.com/"})
			Expect(status).To(Equal(fasthttp.StatusGatewayTimeout))
			Expect(decodeError(body).ErrorType).To(Equal(capture.OutcomeTimeout))
		})

		It("returns queue_full when every slot is busy", func() {
			cfg.MaxConcurrent = 1
			capturer.block = make(chan struct{})
			start(true)

			done := make(chan int, 1)
			go func() {
				defer GinkgoRecover()
				status, _ := postCapture(map[string]any{"url": "https://example.com/slow"})
				done <- status
			}()

			Eventually(srv.InUse).Should(Equal(1))

			status, body := postCapture(map[string]any{"url": "https://example.com/other"})
			Expect(status).To(Equal(fasthttp.StatusServiceUnavailable))
			Expect(decodeError(body).ErrorType).To(Equal(service.ErrorTypeQueueFull))
			Expect(recorder.rejected()).To(Equal(1))

			close(capturer.block)
			Eventually(done).Should(Receive(Equal(fasthttp.StatusOK)))
			Eventually(srv.InUse).Should(Equal(0))
		})
	})

	Describe("stored captures", func() {
		var captureID string

		BeforeEach(func() {
			start(true)
			status, body := postCapture(map[string]any{"url": "https://shop.example.com/cart"})
			Expect(status).To(Equal(fasthttp.StatusOK))

			var resp service.CaptureResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			captureID = resp.CaptureID
		})

		It("serves the HAR document by id", func() {
			status, body := client.do(fasthttp.MethodGet, "/har/"+captureID, nil)
			Expect(status).To(Equal(fasthttp.StatusOK))

			var doc har.HAR
			Expect(json.Unmarshal(body, &doc)).To(Succeed())
			Expect(doc.Log.Version).To(Equal("1.2"))
			Expect(doc.Log.Entries).To(HaveLen(2))
			Expect(doc.Metadata.CaptureID).To(Equal(captureID))
		})

		It("returns 404 for unknown ids and 400 for invalid ones", func() {
			status, _ := client.do(fasthttp.MethodGet, "/har/unknown-id", nil)
			Expect(status).To(Equal(fasthttp.StatusNotFound))

			status, body := client.do(fasthttp.MethodGet, "/har/bad.id", nil)
			Expect(status).To(Equal(fasthttp.StatusBadRequest))
			Expect(decodeError(body).ErrorType).To(Equal(service.ErrorTypeInvalidRequest))
		})

		It("resolves the latest capture for a URL", func() {
			status, body := client.do(fasthttp.MethodGet, "/latest?url="+url.QueryEscape("https://shop.example.com/cart"), nil)
			Expect(status).To(Equal(fasthttp.StatusOK))

			var resp service.LatestResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.CaptureID).To(Equal(captureID))

			status, _ = client.do(fasthttp.MethodGet, "/latest?url="+url.QueryEscape("https://never.example.com/"), nil)
			Expect(status).To(Equal(fasthttp.StatusNotFound))

			status, _ = client.do(fasthttp.MethodGet, "/latest", nil)
			Expect(status).To(Equal(fasthttp.StatusBadRequest))
		})
	})

	Describe("without storage", func() {
		It("still captures but refuses lookups", func() {
			start(false)

			status, body := postCapture(map[string]any{"url": "https://example.com/"})
			Expect(status).To(Equal(fasthttp.StatusOK))
			var resp service.CaptureResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Stored).To(BeFalse())

			status, body = client.do(fasthttp.MethodGet, "/har/"+resp.CaptureID, nil)
			Expect(status).To(Equal(fasthttp.StatusServiceUnavailable))
			Expect(decodeError(body).ErrorType).To(Equal(service.ErrorTypeStorageDisabled))

			status, _ = client.do(fasthttp.MethodGet, "/latest?url=https://example.com/", nil)
			Expect(status).To(Equal(fasthttp.StatusServiceUnavailable))
		})
	})

	Describe("GET /health", func() {
		It("reports capacity and browser state", func() {
			start(true)

			status, body := client.do(fasthttp.MethodGet, "/health", nil)
			Expect(status).To(Equal(fasthttp.StatusOK))

			var resp service.HealthResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Status).To(Equal("ok"))
			Expect(resp.ServerID).To(Equal("test-1"))
			Expect(resp.Capacity).To(Equal(2))
			Expect(resp.BrowserVersion).To(Equal("Chrome/137.0.7151.55"))
			Expect(resp.Storage).To(BeTrue())
		})

		It("returns 503 when the browser is gone", func() {
			browser.alive = false
			start(true)

			status, _ := client.do(fasthttp.MethodGet, "/health", nil)
			Expect(status).To(Equal(fasthttp.StatusServiceUnavailable))
		})
	})

	It("returns 404 for unknown routes", func() {
		start(true)

		status, body := client.do(fasthttp.MethodGet, "/render", nil)
		Expect(status).To(Equal(fasthttp.StatusNotFound))
		Expect(decodeError(body).ErrorType).To(Equal(service.ErrorTypeNotFound))
	})
})
