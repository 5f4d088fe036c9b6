package middlewares

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/strandapp/strand/utils/log"
)

// Authorizer resolves a jwt token to the authenticated user's id. The
// production implementation is Cognito backed; tests inject a fake.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (userId string, err error)
}

var authorizer Authorizer

// Setup initializes package scoped state that is needed to perform
// middleware functionalities, such as the Cognito client. This function must
// be called before any middleware is used.
func Setup() {
	auth, err := newCognitoAuthorizer()
	if err != nil {
		// Abort directly if Cognito isn't set up successfully, which is
		// crucial for server side authorization.
		log.Log.Fatalf("fail to setup Cognito client: %s", err.Error())
	}
	SetAuthorizer(auth)
}

func SetAuthorizer(auth Authorizer) {
	authorizer = auth
}

type cognitoAuthorizer struct {
	client *cognitoidentityprovider.Client
}

// newCognitoAuthorizer creates a client with the aws config located in
// ~/.aws/config, returning error on error.
func newCognitoAuthorizer() (*cognitoAuthorizer, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, err
	}
	return &cognitoAuthorizer{client: cognitoidentityprovider.NewFromConfig(cfg)}, nil
}

func (a *cognitoAuthorizer) Authorize(ctx context.Context, token string) (string, error) {
	user, err := a.client.GetUser(ctx, &cognitoidentityprovider.GetUserInput{AccessToken: &token})
	if err != nil {
		return "", err
	}
	return *user.Username, nil
}

// JWT fetches the user jwt from the "token" query parameter, validates it
// and stores the user's id in the "sub" request header. It rejects the
// request on a missing or invalid token.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		jwt := c.Query("token")
		if jwt == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "empty jwt token"})
			c.Abort()
			return
		}

		userId, err := authorizer.Authorize(c.Request.Context(), jwt)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
			c.Abort()
			return
		}

		// Successfully validated the jwt token, replace the header field
		// "token" with the user's sub (id).
		c.Request.Header.Del("token")
		c.Request.Header.Set("sub", userId)

		c.Next()
	}
}
