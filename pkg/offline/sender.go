package offline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Request - отложенный мутирующий запрос
type Request struct {
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
	Attempts int
}

// Response - результат Send. Queued=true - синтетический ответ 202:
// запрос принят в очередь, но еще не подтвержден сетью. Вызывающий
// обязан отличать его от настоящего 201
type Response struct {
	StatusCode int
	Body       []byte
	Queued     bool
}

// Sender - клиентская очередь доставки. В онлайне запросы уходят
// напрямую; сетевой сбой ставит запрос в хвост очереди и возвращает
// ошибку вызывающему. Если клиент уже знает, что он оффлайн, запрос
// ставится в очередь без похода в сеть и возвращается синтетический
// 202 {queued:true}, чтобы UI не блокировался на заведомо обреченном
// вызове. При возврате связи очередь сбрасывается строго FIFO.
//
// Единственная точка мутации очереди - замок mu: сброс атомарно
// забирает список ожидающих целиком, конкурентные Send в это время
// пополняют свежий список и попадают в следующий проход
type Sender struct {
	client *http.Client
	logger *logrus.Logger
	policy *RetryPolicy

	mu       sync.Mutex
	pending  []*Request
	dead     []*Request
	online   bool
	flushing bool
}

// NewSender создает Sender в онлайн-состоянии
func NewSender(client *http.Client, logger *logrus.Logger, policy *RetryPolicy) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &Sender{
		client: client,
		logger: logger,
		policy: policy,
		online: true,
	}
}

// Online сообщает текущее известное состояние связи
func (s *Sender) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline - сигнал связи от хоста. Переход оффлайн->онлайн запускает
// сброс очереди в отдельной горутине: вызывающий не ждет межпроходных
// пауз ретраев
func (s *Sender) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if online && !wasOnline {
		go s.Flush(context.Background())
	}
}

// Send выполняет запрос либо ставит его в очередь.
// В оффлайне Send никогда не возвращает ошибку: всегда 202 {queued:true}
func (s *Sender) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	s.mu.Lock()
	if !s.online {
		s.pending = append(s.pending, &Request{Method: method, URL: url, Header: header, Body: body})
		queued := len(s.pending)
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{"url": url, "queued": queued}).Info("Offline, request queued")
		return &Response{StatusCode: http.StatusAccepted, Queued: true}, nil
	}
	s.mu.Unlock()

	resp, err := s.do(ctx, &Request{Method: method, URL: url, Header: header, Body: body})
	if err != nil {
		// Сетевой сбой: запрос в хвост очереди, вызывающий все равно
		// видит ошибку
		s.mu.Lock()
		s.online = false
		s.pending = append(s.pending, &Request{Method: method, URL: url, Header: header, Body: body})
		s.mu.Unlock()
		s.logger.WithError(err).WithField("url", url).Warn("Network failure, request queued and error re-raised")
		return nil, err
	}
	return resp, nil
}

// Flush сбрасывает очередь строго в порядке поступления. Запрос,
// снова упавший на сбросе, уходит в хвост очереди; после MaxAttempts
// неудач он перемещается в dead-letter список вместо вечной переочереди
func (s *Sender) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.flushing = false
		s.mu.Unlock()
	}()

	for pass := 1; ; pass++ {
		// Атомарная подмена списка ожидающих перед итерацией
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		if len(batch) == 0 {
			return
		}

		delivered := 0
		for _, req := range batch {
			if _, err := s.do(ctx, req); err != nil {
				req.Attempts++
				if req.Attempts >= s.policy.MaxAttempts {
					s.mu.Lock()
					s.dead = append(s.dead, req)
					s.mu.Unlock()
					s.logger.WithError(err).WithField("url", req.URL).Error("Request moved to dead letters")
					continue
				}
				s.mu.Lock()
				s.pending = append(s.pending, req)
				s.mu.Unlock()
				continue
			}
			delivered++
		}

		s.mu.Lock()
		remaining := len(s.pending)
		s.mu.Unlock()
		if remaining == 0 {
			return
		}
		if delivered == 0 {
			// Прохода без единой доставки достаточно, чтобы считать
			// связь снова потерянной
			s.mu.Lock()
			s.online = false
			s.mu.Unlock()
			return
		}
		time.Sleep(s.policy.NextDelay(pass))
	}
}

// Pending возвращает число ожидающих запросов
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// DeadLetters возвращает запросы, исчерпавшие попытки доставки
func (s *Sender) DeadLetters() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request{}, s.dead...)
}

func (s *Sender) do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
