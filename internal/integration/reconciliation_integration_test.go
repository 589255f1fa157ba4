package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/garagehq/invoice-service-go/internal/db"
	"github.com/garagehq/invoice-service-go/internal/dedup"
	"github.com/garagehq/invoice-service-go/internal/events"
	httpapi "github.com/garagehq/invoice-service-go/internal/http"
	"github.com/garagehq/invoice-service-go/internal/invoice"
	"github.com/garagehq/invoice-service-go/internal/ledger"
	"github.com/garagehq/invoice-service-go/internal/sequence"
	"github.com/garagehq/invoice-service-go/internal/usage"
	"github.com/garagehq/invoice-service-go/internal/workshop"
)

func TestReconciliationIntegration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pgC, dbURL := startPostgres(ctx, t)
	defer terminateContainer(t, pgC)

	rabbitC, rabbitURL := startRabbitMQ(ctx, t)
	defer terminateContainer(t, rabbitC)

	logger := log.New(io.Discard, "", log.LstdFlags)
	require.NoError(t, db.RunMigrations(dbURL, logger))

	app := startInvoiceService(ctx, t, dbURL, rabbitURL)
	defer app.stop()

	client := &http.Client{Timeout: 5 * time.Second}

	padID := createPart(ctx, t, client, app.baseURL, "brake pad", 25, 10)
	filterID := createPart(ctx, t, client, app.baseURL, "oil filter", 10, 1)

	appt, err := app.shop.CreateAppointment(ctx, workshop.Appointment{CustomerID: 100, VehicleID: 200, ScheduledAt: time.Now().UTC()})
	require.NoError(t, err)

	testConn := dialAMQP(ctx, t, rabbitURL)
	defer testConn.Close()
	reconciledQueue := bindTestQueue(ctx, t, testConn, events.UsageReconciledRoutingKey)
	depletedQueue := bindTestQueue(ctx, t, testConn, events.StockDepletedRoutingKey)

	// invoice creation over HTTP draws stock and publishes the movements
	inv := createInvoice(ctx, t, client, app.baseURL, invoice.CreateInvoiceInput{
		AppointmentID: &appt.ID,
		TaxPercentage: 25,
		LabourCost:    100,
		UsedParts:     []invoice.Line{{PartID: padID, Count: 4}},
	})
	waitForAvailability(ctx, t, client, app.baseURL, padID, 6)

	reconciled := waitForEnvelope(ctx, t, testConn, reconciledQueue, events.EventTypeUsageReconciled)
	var recPayload events.UsageReconciledPayload
	require.NoError(t, json.Unmarshal(reconciled.Payload, &recPayload))
	require.Equal(t, inv.ID, recPayload.InvoiceID)
	require.Len(t, recPayload.Consumed, 1)
	require.Equal(t, events.StockLine{PartID: padID, Quantity: 4}, recPayload.Consumed[0])

	// a shop-floor PartUsed event accumulates onto the appointment's invoice
	publishPartUsed(ctx, t, testConn, 1, events.PartUsedPayload{
		AppointmentID: appt.ID,
		PartID:        padID,
		Count:         2,
		Timestamp:     time.Now().UTC(),
	})
	waitForAvailability(ctx, t, client, app.baseURL, padID, 4)

	got := getInvoice(ctx, t, client, app.baseURL, inv.ID)
	require.Len(t, got.UsedParts, 1)
	require.Equal(t, 6, got.UsedParts[0].Count)

	// an oversized draw aborts and reports the depletion without moving stock
	publishPartUsed(ctx, t, testConn, 2, events.PartUsedPayload{
		AppointmentID: appt.ID,
		PartID:        filterID,
		Count:         5,
		Timestamp:     time.Now().UTC(),
	})
	depleted := waitForEnvelope(ctx, t, testConn, depletedQueue, events.EventTypeStockDepleted)
	var depPayload events.StockDepletedPayload
	require.NoError(t, json.Unmarshal(depleted.Payload, &depPayload))
	require.Equal(t, filterID, depPayload.PartID)
	require.Equal(t, 5, depPayload.Requested)
	require.Equal(t, 1, depPayload.Available)
	waitForAvailability(ctx, t, client, app.baseURL, filterID, 1)

	// deleting the invoice restores every consumed unit
	deleteInvoice(ctx, t, client, app.baseURL, inv.ID)
	waitForAvailability(ctx, t, client, app.baseURL, padID, 10)
}

type invoiceApp struct {
	baseURL string
	shop    *workshop.Repository
	stop    func()
}

func startInvoiceService(ctx context.Context, t *testing.T, dbURL, rabbitURL string) *invoiceApp {
	t.Helper()

	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)

	conn := dialAMQP(ctx, t, rabbitURL)

	invoices := invoice.NewRepository(pool)
	parts := ledger.NewRepository(pool)
	records := usage.NewRepository(pool)
	shop := workshop.NewRepository(pool)
	logger := log.New(io.Discard, "", log.LstdFlags)

	publisher, err := events.NewPublisher(conn, sequence.NewRepository(pool), events.PublisherOptions{})
	require.NoError(t, err)

	engine := invoice.NewEngine(db.PgxPool{Pool: pool}, invoices, parts, records, shop, logger,
		invoice.EngineOptions{Publisher: publisher})

	serviceCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, events.StartPartUsedConsumer(serviceCtx, conn, engine, dedup.NewRepository(pool), logger))

	handler := httpapi.NewHandler(engine, parts, nil)
	router := httpapi.NewRouter(handler)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return &invoiceApp{
		baseURL: fmt.Sprintf("http://%s", ln.Addr().String()),
		shop:    shop,
		stop: func() {
			cancel()
			_ = publisher.Close()
			_ = conn.Close()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
			pool.Close()

			select {
			case err := <-errCh:
				t.Logf("server error: %v", err)
			default:
			}
		},
	}
}

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "garage"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/garage?sslmode=disable", host, mappedPort.Port())
	return container, dsn
}

func startRabbitMQ(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mappedPort.Port())
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}

func createPart(ctx context.Context, t *testing.T, client *http.Client, baseURL, name string, unitPrice float64, available int) int64 {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"name":              name,
		"unitPrice":         unitPrice,
		"quantityAvailable": available,
	})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/parts", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var part ledger.Part
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&part))
	return part.ID
}

func createInvoice(ctx context.Context, t *testing.T, client *http.Client, baseURL string, in invoice.CreateInvoiceInput) invoice.Invoice {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/invoices", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var inv invoice.Invoice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inv))
	return inv
}

func getInvoice(ctx context.Context, t *testing.T, client *http.Client, baseURL string, invoiceID int64) invoice.Invoice {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/invoices/%d", baseURL, invoiceID), nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var inv invoice.Invoice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inv))
	return inv
}

func deleteInvoice(ctx context.Context, t *testing.T, client *http.Client, baseURL string, invoiceID int64) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/invoices/%d", baseURL, invoiceID), nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func bindTestQueue(ctx context.Context, t *testing.T, conn *amqp.Connection, routingKey string) string {
	t.Helper()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.ExchangeDeclare(events.EventsExchange, "topic", true, false, false, false, nil))

	queueName := "it." + routingKey
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(queueName, routingKey, events.EventsExchange, false, nil))
	return queueName
}

func publishPartUsed(ctx context.Context, t *testing.T, conn *amqp.Connection, seq int64, payload events.PartUsedPayload) {
	t.Helper()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	env := events.EventEnvelope{
		EventName:    events.EventTypePartUsed,
		EventVersion: 1,
		EventID:      fmt.Sprintf("it-evt-%d", seq),
		Producer:     "workshop-terminal",
		PartitionKey: fmt.Sprintf("appointment-%d", payload.AppointmentID),
		Sequence:     seq,
		OccurredAt:   time.Now().UTC(),
		Payload:      body,
	}
	envBody, err := json.Marshal(env)
	require.NoError(t, err)

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, events.EventsExchange, events.PartUsedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         envBody,
	})
	require.NoError(t, err)
}

func waitForEnvelope(ctx context.Context, t *testing.T, conn *amqp.Connection, queue, eventName string) events.EventEnvelope {
	t.Helper()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	backoff := 50 * time.Millisecond
	for {
		select {
		case <-pollCtx.Done():
			t.Fatalf("timed out waiting for %s on %s: %v", eventName, queue, pollCtx.Err())
		default:
		}

		msg, ok, getErr := ch.Get(queue, true)
		require.NoError(t, getErr)
		if ok {
			var env events.EventEnvelope
			require.NoError(t, json.Unmarshal(msg.Body, &env))
			if env.EventName == eventName {
				return env
			}
			continue
		}

		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}

func waitForAvailability(ctx context.Context, t *testing.T, client *http.Client, baseURL string, partID int64, expected int) {
	t.Helper()

	pollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	backoff := 50 * time.Millisecond
	for {
		select {
		case <-pollCtx.Done():
			t.Fatalf("timed out waiting for availability of part %d: %v", partID, pollCtx.Err())
		default:
		}

		req, err := http.NewRequestWithContext(pollCtx, http.MethodGet, fmt.Sprintf("%s/api/parts/%d", baseURL, partID), nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)

		var part ledger.Part
		func() {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&part))
			}
		}()

		if resp.StatusCode == http.StatusOK && part.QuantityAvailable == expected {
			return
		}

		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}

func dialAMQP(ctx context.Context, t *testing.T, rabbitURL string) *amqp.Connection {
	t.Helper()
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := amqp.DialConfig(rabbitURL, amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			return (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 5 * time.Second,
			}).DialContext(dialCtx, network, addr)
		},
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	require.NoError(t, err)
	return conn
}
