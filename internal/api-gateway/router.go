package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/shared/auth"
)

// Targets são os upstreams internos
type Targets struct {
	Game   string
	Wallet string
}

// Gateway é a borda pública: resolve a identidade e encaminha para os serviços
type Gateway struct {
	log      *zap.Logger
	verifier *auth.Verifier
	game     *httputil.ReverseProxy
	wallet   *httputil.ReverseProxy
}

func New(log *zap.Logger, verifier *auth.Verifier, t Targets) (*Gateway, error) {
	game, err := proxy(t.Game)
	if err != nil {
		return nil, err
	}
	wallet, err := proxy(t.Wallet)
	if err != nil {
		return nil, err
	}
	return &Gateway{log: log, verifier: verifier, game: game, wallet: wallet}, nil
}

// proxy reescreve só o destino; a identidade já foi tratada em withIdentity
func proxy(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil {
		return nil, err
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
		},
	}, nil
}

func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// game (ex.: /api/game/bets -> game-service /bets)
	mux.Handle("/api/game/", http.StripPrefix("/api/game", g.game))

	// wallet: só leitura; depósito e saque ficam na rede interna
	mux.Handle("/api/wallet/", readOnly(http.StripPrefix("/api/wallet", g.wallet)))

	// websocket da rodada; o ReverseProxy repassa o upgrade
	mux.Handle("/ws", g.game)

	return withCORS(g.withIdentity(mux))
}

// withIdentity descarta a identidade enviada pelo cliente e grava a do token verificado.
// Sem token a requisição segue anônima; token inválido é recusado.
func (g *Gateway) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Strip(r.Header)

		tok := auth.BearerToken(r)
		if tok == "" && r.URL.Path == "/ws" {
			// navegador não manda Authorization no upgrade
			q := r.URL.Query()
			tok = q.Get("token")
			q.Del("token")
			r.URL.RawQuery = q.Encode()
		}
		if tok != "" {
			id, err := g.verifier.Verify(tok)
			if err != nil {
				g.log.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			auth.Set(r.Header, id)
		}
		r.Header.Del("Authorization")
		next.ServeHTTP(w, r)
	})
}

func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
