package mockldapconn

//go:generate go run go.uber.org/mock/mockgen -destination=mockldapconn.go -package=mockldapconn -copyright_file=/dev/null github.com/cpp-cyber/ldapauth/internal/ldap Conn
