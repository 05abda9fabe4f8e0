// hashpass prints a bcrypt hash for resetting a user's password by hand:
//
//	go run ./cmd/tools/hashpass -email admin@openshort.local 'new password'
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	email := flag.String("email", "", "print an UPDATE statement for this user")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: hashpass [-cost n] [-email addr] <password>")
	}
	password := flag.Arg(0)
	if n := len(password); n < 8 || n > 72 {
		log.Fatal("password must be 8-72 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), *cost)
	if err != nil {
		log.Fatal(err)
	}

	if *email == "" {
		fmt.Println(string(hash))
		return
	}
	addr := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(*email)), "'", "''")
	fmt.Printf("UPDATE users SET password_hash = '%s' WHERE email = '%s';\n", hash, addr)
}
