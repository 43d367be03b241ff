package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/gatherhq/batch-jobs-service/internal/api"
	"github.com/gatherhq/batch-jobs-service/internal/config"
	"github.com/gatherhq/batch-jobs-service/internal/pkg/telemetry"
	"github.com/gatherhq/batch-jobs-service/internal/repository/postgres"
	"github.com/gatherhq/batch-jobs-service/internal/service/assets"
	"github.com/gatherhq/batch-jobs-service/internal/service/contactform"
	"github.com/gatherhq/batch-jobs-service/internal/service/credvault"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailcontent"
	"github.com/gatherhq/batch-jobs-service/internal/service/emailjob"
	"github.com/gatherhq/batch-jobs-service/internal/service/feestax"
	"github.com/gatherhq/batch-jobs-service/internal/service/ledger"
	"github.com/gatherhq/batch-jobs-service/internal/service/paysummary"
	"github.com/gatherhq/batch-jobs-service/internal/service/ratelimit"
	"github.com/gatherhq/batch-jobs-service/internal/service/renewal"
	"github.com/gatherhq/batch-jobs-service/internal/ses"
	"github.com/gatherhq/batch-jobs-service/internal/stripeapi"
	"github.com/gatherhq/batch-jobs-service/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("Batch Jobs Service starting (cmd/server/main.go)")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := telemetry.Init(cfg.Sentry.DSN, cfg.Sentry.Environment); err != nil {
		log.Printf("Warning: Sentry init failed, continuing without error tracking: %v", err)
	}
	defer telemetry.Flush()

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Database. Triggers respond before any batch work starts, so a wedged
	// connection must fail fast rather than stall the accept path.
	dbURL := cfg.Database.URL
	if !strings.Contains(dbURL, "connect_timeout") {
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}
	log.Println("Connected to database")

	// Repositories
	ledgerRepo := postgres.NewLedgerRepo(db)
	credentialRepo := postgres.NewCredentialRepo(db)
	subscriptionRepo := postgres.NewSubscriptionRepo(db)
	transactionRepo := postgres.NewTransactionRepo(db)
	emailRepo := postgres.NewEmailRepo(db)
	tenantRepo := postgres.NewTenantRepo(db)

	ledgerSvc := ledger.NewService(ledgerRepo)

	vault, err := credvault.NewVault(cfg.Encryption.PaymentEncryptionKey, credentialRepo)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	// Optional shared rate counters. Without Redis the token buckets are
	// per-replica, which is correct for a single instance.
	var redisClient *redis.Client
	var sesCounter, stripeCounter *ratelimit.RedisCounter
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: invalid Redis URL, shared rate counters disabled: %v", err)
		} else {
			redisClient = redis.NewClient(opts)
			pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = redisClient.Ping(pctx).Err()
			pcancel()
			if err != nil {
				log.Printf("Warning: Redis unreachable, shared rate counters disabled: %v", err)
				redisClient.Close()
				redisClient = nil
			} else {
				sesCounter = ratelimit.NewRedisCounter(redisClient, cfg.Rates.SESPerSecond)
				stripeCounter = ratelimit.NewRedisCounter(redisClient, cfg.Rates.StripePerSecond)
				log.Println("[RateLimit] Shared Redis counters enabled")
			}
		}
	} else {
		log.Println("Redis not configured; rate limits are per-replica only")
	}

	sesGovernor := ratelimit.NewGovernor("ses", cfg.Rates.SESPerSecond,
		ratelimit.DefaultBreakerConfig(),
		ratelimit.WithSharedCounter(sesCounter))
	stripeGovernor := ratelimit.NewGovernor("stripe", cfg.Rates.StripePerSecond,
		ratelimit.DefaultBreakerConfig(),
		ratelimit.WithSharedCounter(stripeCounter),
		// Missing payment intents are data problems, not provider outages;
		// they must not open the circuit.
		ratelimit.WithFailurePredicate(stripeapi.IsTransient))

	stripeFactory := stripeapi.NewFactory(stripeGovernor)

	// Email content pipeline. The S3 store only serves s3:// footer URLs;
	// without AWS config those tenants just lose their footer.
	var footerStore assets.ObjectStore
	if s3Store, err := assets.NewS3Store(context.Background(), cfg.SES.Region); err != nil {
		log.Printf("Warning: S3 footer store unavailable: %v", err)
	} else {
		footerStore = s3Store
	}
	fetcher := assets.NewFetcher(&http.Client{Timeout: cfg.SES.Timeout()}, footerStore)
	builder := emailcontent.NewBuilder(tenantRepo, fetcher)
	renderer := emailcontent.NewRenderer()
	sender := ses.NewSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
	log.Printf("SES sender initialized: region=%s from=%s", cfg.SES.Region, cfg.SES.FromEmail)

	// Job services
	emailSvc := emailjob.NewService(emailjob.Deps{
		Templates:  emailRepo,
		Recipients: emailRepo,
		SentLog:    emailRepo,
		Settings:   tenantRepo,
		Assets:     fetcher,
		Content:    builder,
		Sender:     sender,
		Governor:   sesGovernor,
	}, emailjob.Config{
		DefaultFromEmail: cfg.SES.FromEmail,
		BatchSize:        cfg.Jobs.EmailBatchSize,
		MaxEmails:        cfg.Jobs.MaxEmails,
		PrewarmTimeout:   cfg.Jobs.PrewarmTimeout(),
	})

	renewalSvc := renewal.NewService(subscriptionRepo, subscriptionRepo, vault, stripeFactory, renewal.Config{
		RenewalDays:      cfg.Renewal.ThresholdDays,
		ExtendedDays:     cfg.Renewal.ExtendedDays,
		BatchSize:        cfg.Renewal.BatchSize,
		MaxSubscriptions: cfg.Renewal.MaxSubscriptions,
		RateLimitDelay:   cfg.Stripe.RateLimitDelay(),
	})

	feesTaxSvc := feestax.NewService(transactionRepo, vault, stripeFactory, feestax.Config{
		BatchSize:      cfg.FeesTax.BatchSize,
		RateLimitDelay: cfg.Stripe.RateLimitDelay(),
	})

	contactFormSvc := contactform.NewService(tenantRepo, renderer, sender, sesGovernor, emailRepo, cfg.SES.FromEmail)

	paySummarySvc := paysummary.NewService(transactionRepo, tenantRepo, renderer, sender, sesGovernor, emailRepo, cfg.SES.FromEmail, nil)

	// Orchestrator
	orchestrator := worker.NewOrchestrator(worker.Deps{
		Ledger:      ledgerSvc,
		Renewal:     renewalSvc,
		Email:       emailSvc,
		FeesTax:     feesTaxSvc,
		ContactForm: contactFormSvc,
		PaySummary:  paySummarySvc,
	}, worker.Config{
		PoolSize:   cfg.Jobs.WorkerPoolSize,
		QueueSize:  cfg.Jobs.QueueSize,
		JobTimeout: cfg.Jobs.JobTimeout(),
	})
	orchestrator.Start()
	log.Printf("Orchestrator started: pool=%d queue=%d timeout=%s",
		cfg.Jobs.WorkerPoolSize, cfg.Jobs.QueueSize, cfg.Jobs.JobTimeout())

	// API server
	handlers := api.NewHandlers(orchestrator, ledgerSvc)
	server := api.NewServer(cfg.Server, handlers)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized - server is ready")

	<-done
	log.Println("Shutting down...")

	// Stop accepting triggers first, then let queued and in-flight jobs
	// reach a terminal ledger state.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	orchestrator.Stop()

	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
