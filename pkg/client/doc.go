// Package client provides the runtime shared by DigiSign API callers.
//
// It covers the concerns every resource command needs:
//   - Resolving configuration from the environment
//   - Exchanging an access/secret key pair for a bearer token and caching it
//   - Dispatching requests and mapping status codes to typed errors
//   - Walking paginated collections in their different envelope shapes
//   - Uploading and downloading files
//
// # Basic Usage
//
//	cfg := client.ConfigFromEnv()
//	c, err := client.New(cfg.BaseURL, client.WithTimeout(30*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := client.NewTokenProvider(cfg, c).Resolve(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	envelope, err := c.Send(ctx, client.Request{
//	    Method: http.MethodGet,
//	    Path:   "/api/envelopes/" + id,
//	}, token)
//
// # Pagination
//
// Paginate returns a lazy sequence; pages are fetched as the loop advances:
//
//	for record, err := range c.Paginate(ctx, "/api/envelopes", token, nil, client.WithMaxPages(5)) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(record)
//	}
//
// # Error Handling
//
// Every HTTP failure is exactly one of *AuthError, *RateLimitError,
// *ValidationError, *NotFoundError, *ForbiddenError or *APIError. Transport
// failures are not part of that set and report KindUnclassified:
//
//	_, err := c.Send(ctx, req, token)
//	switch client.KindOf(err) {
//	case client.KindAuthentication:
//	    // obtain a new token
//	case client.KindRateLimit:
//	    // the client does not retry; see Retrier
//	case client.KindValidation:
//	    var ve *client.ValidationError
//	    errors.As(err, &ve)
//	    for _, v := range ve.Fields() {
//	        fmt.Println(v.PropertyPath, v.Message)
//	    }
//	}
package client
