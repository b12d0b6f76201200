package middleware

import (
	"log"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/deemkeen/federatoad/db"
	"github.com/deemkeen/federatoad/util"
)

// AuthMiddleware authenticates an SSH session against the account store,
// registering a new account on first login unless registration is closed.
func AuthMiddleware(conf *util.AppConfig) wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			database := db.GetDB()

			found, acc := database.ReadAccBySession(s)

			switch {
			case found == nil:
				if acc != nil && acc.Muted {
					log.Printf("Blocked login attempt from muted user: %s", acc.Username)
					s.Write([]byte("Your account has been muted by an administrator.\n"))
					s.Close()
					return
				}
				util.LogPublicKey(s)
			default:
				if conf.Conf.Closed {
					log.Printf("Rejected new user registration - registration is closed")
					s.Write([]byte("Registration is closed, but you can host your own federatoad!\n"))
					s.Write([]byte("More on: https://github.com/deemkeen/federatoad\n"))
					s.Close()
					return
				}

				if conf.Conf.Single {
					count, err := database.CountAccounts()
					if err != nil {
						log.Printf("Error counting accounts: %v", err)
						s.Write([]byte("An error occurred. Please try again later.\n"))
						s.Close()
						return
					}
					if count >= 1 {
						log.Printf("Rejected new user registration in single-user mode")
						s.Write([]byte("This instance is in single-user mode, but you can host your own federatoad!\n"))
						s.Write([]byte("More on: https://github.com/deemkeen/federatoad\n"))
						s.Close()
						return
					}
				}

				err, created := database.CreateAccount(s, util.RandomString(10))
				if err != nil {
					log.Println("Could not create a user: ", err)
				}

				if created {
					util.LogPublicKey(s)
				} else {
					log.Println("The user is still empty!")
				}
			}
			h(s)
		}
	}
}
